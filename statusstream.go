package coingift

import (
	"fmt"
	"net/http"
	"time"

	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
)

const (
	// DefaultHeartbeatInterval is the pause between liveness events on a
	// payment status stream.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultHeartbeatLimit caps the number of heartbeats sent before a
	// stream is closed unilaterally. This is a liveness bound for the
	// connection, not a judgement on payment expiry.
	DefaultHeartbeatLimit = 200
)

// PaymentStreamConfig contains the configuration for the payment status
// stream handler.
type PaymentStreamConfig struct {
	Monitor *PaymentMonitor

	// HeartbeatInterval defaults to DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// HeartbeatLimit defaults to DefaultHeartbeatLimit.
	HeartbeatLimit int

	// Clock is used to schedule heartbeats and can be stubbed out in
	// tests.
	Clock clock.Clock

	Logger *zap.SugaredLogger
}

// NewPaymentStatusHandler returns the handler for
// GET /payments/{paymentHash}/status. It opens a server-sent-event
// stream that emits a connected event, heartbeats while waiting, and at
// most one terminal payment-status event before closing.
func NewPaymentStatusHandler(cfg *PaymentStreamConfig) http.HandlerFunc {
	interval := cfg.HeartbeatInterval
	if interval == 0 {
		interval = DefaultHeartbeatInterval
	}

	limit := cfg.HeartbeatLimit
	if limit == 0 {
		limit = DefaultHeartbeatLimit
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		hash, err := lntypes.MakeHashFromStr(
			chi.URLParam(r, "paymentHash"),
		)
		if err != nil {
			http.Error(w, "invalid payment hash",
				http.StatusBadRequest)

			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream not supported",
				http.StatusInternalServerError)

			return
		}

		logger := cfg.Logger.With("hash", hash)

		// Buffer one terminal event. Later invocations fall through to
		// the default case, so a replayed notification cannot fire the
		// stream twice.
		statusChan := make(chan PaymentStatus, 1)
		cancel, err := cfg.Monitor.Subscribe(hash,
			func(status PaymentStatus, _ wallet.Notification) {
				select {
				case statusChan <- status:
				default:
				}
			},
		)
		if err != nil {
			http.Error(w, err.Error(),
				http.StatusServiceUnavailable)

			return
		}

		// Unsubscribe on every exit path: settlement, heartbeat cap,
		// client disconnect and write errors alike. Leaking the
		// listener would keep the monitor's per-hash set alive forever.
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if err := writeEvent(w, "connected", "connected"); err != nil {
			return
		}
		flusher.Flush()

		logger.Debugw("Payment status stream opened")

		for beat := 1; beat <= limit; beat++ {
			select {
			case <-r.Context().Done():
				logger.Debugw("Payment status stream client gone")

				return

			case status := <-statusChan:
				logger.Infow("Payment status stream settled",
					"status", status)

				if err := writeEvent(
					w, "payment-status", string(status),
				); err != nil {
					return
				}
				flusher.Flush()

				return

			case <-clk.TickAfter(interval):
				err := writeEvent(w, "heartbeat",
					fmt.Sprintf("heartbeat-%d", beat))
				if err != nil {
					return
				}
				flusher.Flush()
			}
		}

		// Heartbeat cap reached without settlement. Close without a
		// terminal event; the client must treat this as indeterminate.
		logger.Infow("Payment status stream heartbeat cap reached")
	}
}

func writeEvent(w http.ResponseWriter, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)

	return err
}
