package main

import (
	"errors"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultInstrumentationAddress is the listen address for the metrics
	// and profiling server.
	DefaultInstrumentationAddress = "localhost:9091"

	// DefaultApiAddress is the listen address for the public API.
	DefaultApiAddress = "localhost:8080"

	// DefaultMaxBatchSize caps the number of gifts in a single batch.
	DefaultMaxBatchSize = 20

	// DefaultGiftExpiry is the gift validity window when the config
	// doesn't specify one.
	DefaultGiftExpiry = 72 * time.Hour
)

type Config struct {
	// Wallet contains the wallet service connection config.
	Wallet WalletConfig `yaml:"wallet"`

	// DB contains the database config.
	DB DbConfig `yaml:"db"`

	// Api contains the public API server config.
	Api ApiConfig `yaml:"api"`

	// Gifts contains limits applied to new gift batches.
	Gifts GiftConfig `yaml:"gifts"`

	Logging LoggingConfig `yaml:"logging"`

	// InstrumentationAddress is the address of the HTTP server serving
	// Prometheus metrics and pprof endpoints.
	InstrumentationAddress string `yaml:"instrumentationAddress"`
}

type WalletConfig struct {
	// URL is the wallet-connect websocket endpoint.
	URL string `yaml:"url"`

	// Timeout is a generic time limit waiting for calls to the wallet
	// service to complete.
	Timeout time.Duration `yaml:"timeout"`
}

type DbConfig struct {
	// DSN is the connection string for the database.
	DSN string `yaml:"dsn"`

	// Maximum number of socket connections.
	// Default is 10 connections per every CPU as reported by runtime.NumCPU.
	PoolSize int `yaml:"poolSize"`

	// Minimum number of idle connections which is useful when establishing
	// new connection is slow.
	MinIdleConns int `yaml:"minIdleConns"`

	// Connection age at which client retires (closes) the connection.
	// It is useful with proxies like PgBouncer and HAProxy.
	// Default is to not close aged connections.
	MaxConnAge time.Duration `yaml:"maxConnAge"`

	// Time for which client waits for free connection if all
	// connections are busy before returning an error.
	PoolTimeout time.Duration `yaml:"poolTimeout"`

	// Amount of time after which client closes idle connections.
	// Should be less than server's timeout.
	// Default is 5 minutes. -1 disables idle timeout check.
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

type ApiConfig struct {
	// Address is the listen address of the public API.
	Address string `yaml:"address"`
}

type GiftConfig struct {
	// MaxBatchSize caps the number of gifts in one batch. Defaults to
	// DefaultMaxBatchSize.
	MaxBatchSize int `yaml:"maxBatchSize"`

	// Expiry is the gift validity window. Defaults to DefaultGiftExpiry.
	Expiry time.Duration `yaml:"expiry"`
}

type LoggingConfig struct {
	// Level is the minimum log level. Defaults to debug.
	Level string `yaml:"level"`

	// Format is the log output format, console or json. Defaults to
	// console.
	Format string `yaml:"format"`

	// WithCaller controls whether log lines carry the caller location.
	WithCaller bool `yaml:"withCaller"`
}

func loadConfig(c *cli.Context) (*Config, error) {
	filename := c.String("config")
	if filename == "" {
		return nil, errors.New("no config file specified")
	}

	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if c.Bool(nonStrictConfigFlag.Name) {
		err = yaml.Unmarshal(yamlFile, &cfg)
	} else {
		err = yaml.UnmarshalStrict(yamlFile, &cfg)
	}
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
