package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// initLogger constructs the process-wide SugaredLogger. By default the
// level is 'debug', the format is 'console' and the caller is not
// displayed.
func initLogger(level string, format string, withCaller bool) error {
	if level == "" {
		level = "debug"
	}

	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "time"

	if !withCaller {
		encoderConfig.EncodeCaller = nil
	}

	if format == "" {
		// Add color to the level
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		format = "console"
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(l),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	lo, err := config.Build()
	if err != nil {
		return err
	}

	log = lo.Sugar()

	return nil
}
