package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration
type Config struct {
	// Level is the log level (debug, info, warn, error)
	Level string
	// Format is json or console
	Format string
	// Development switches to the human-friendly encoder with caller and stack traces
	Development bool
	OutputPaths []string
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", OutputPaths: []string{"stdout"}}
}

// New builds a zap logger for the service.
func New(cfg Config) (*zap.Logger, error) {
	var enc zapcore.EncoderConfig
	if cfg.Development {
		enc = zap.NewDevelopmentEncoderConfig()
	} else {
		enc = zap.NewProductionEncoderConfig()
	}
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	format := strings.ToLower(cfg.Format)
	if format != "console" {
		format = "json"
	}
	out := cfg.OutputPaths
	if len(out) == 0 {
		out = []string{"stdout"}
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Development:       cfg.Development,
		DisableCaller:     !cfg.Development,
		DisableStacktrace: !cfg.Development,
		Encoding:          format,
		EncoderConfig:     enc,
		OutputPaths:       out,
		ErrorOutputPaths:  []string{"stderr"},
	}
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "loanpay")), nil
}

// ParseLevel falls back to info on unknown input.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}
