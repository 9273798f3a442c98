package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	coingift "github.com/antonio-ivanovski/coin-gift"
	"github.com/antonio-ivanovski/coin-gift/persistence"
	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/go-pg/pg/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var runCommand = &cli.Command{
	Name:   "run",
	Action: runAction,
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	err = initLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.WithCaller)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		log.Infof("Press ctrl-c to exit")

		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigint:
			return errors.New("user requested termination")

		case <-ctx.Done():
			return nil
		}
	})

	instServer := initInstrumentationServer(cfg.InstrumentationAddress)

	group.Go(func() error {
		log.Infow("Instrumentation HTTP server starting",
			"instrumentationAddress", instServer.Addr)

		return instServer.ListenAndServe()
	})

	group.Go(func() error {
		<-ctx.Done()

		// Stop instrumentation server
		log.Infow("Instrumentation server stopping")

		return instServer.Close()
	})

	group.Go(func() error {
		return run(ctx, cfg)
	})

	return group.Wait()
}

func run(ctx context.Context, cfg *Config) error {
	walletClient, err := wallet.NewWsClient(ctx, &wallet.Config{
		URL:            cfg.Wallet.URL,
		RequestTimeout: cfg.Wallet.Timeout,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer walletClient.Close()

	store, err := initPersistence(ctx, &cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	monitor := coingift.NewPaymentMonitor(&coingift.PaymentMonitorConfig{
		Wallet: walletClient,
		Store:  store,
		Logger: log,
	})
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Shutdown()

	apiServer := newApiServer(cfg, store, walletClient, monitor)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Infow("Api server starting", "address", apiServer.Addr)

		err := apiServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	})

	group.Go(func() error {
		<-ctx.Done()

		log.Infow("Api server stopping")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 30*time.Second,
		)
		defer cancel()

		return apiServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func initPersistence(ctx context.Context, cfg *DbConfig) (
	*persistence.PostgresPersister, error) {

	options, err := pg.ParseURL(cfg.DSN)
	if err != nil {
		return nil, err
	}

	options.PoolSize = cfg.PoolSize
	options.MinIdleConns = cfg.MinIdleConns
	options.MaxConnAge = cfg.MaxConnAge
	options.PoolTimeout = cfg.PoolTimeout
	options.IdleTimeout = cfg.IdleTimeout

	store := persistence.NewPostgresPersisterFromOptions(
		options, &persistence.PostgresPersisterConfig{Logger: log},
	)

	if err := store.Ping(ctx); err != nil {
		store.Close()

		return nil, fmt.Errorf("cannot reach database: %w", err)
	}

	return store, nil
}

func initInstrumentationServer(instAddress string) *http.Server {
	if instAddress == "" {
		instAddress = DefaultInstrumentationAddress
	}

	// Instantiate a new HTTP server and mux.
	instMux := http.NewServeMux()

	// Register the Prometheus handler.
	instMux.Handle("/metrics", promhttp.Handler())

	// Register the pprof handlers. We do this manually because we aren't
	// using the default mux.
	// See issues https://github.com/golang/go/issues/42834 and
	// https://github.com/golang/go/issues/22085
	instMux.HandleFunc("/debug/pprof", pprof.Index)
	instMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	instMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	instMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	instMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	instMux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))
	instMux.Handle("/debug/pprof/block", pprof.Handler("block"))
	instMux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	instMux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	instMux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
	instMux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))

	return &http.Server{
		Addr:    instAddress,
		Handler: instMux,

		// Even though this server should only be exposed to trusted
		// clients, this mitigates slowloris-like DoS attacks.
		ReadHeaderTimeout: 10 * time.Second,
	}
}
