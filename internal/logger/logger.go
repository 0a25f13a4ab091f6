package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry as the "service" field.
const Service = "edgelab"

// New creates a new zap logger
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.TimeKey = "time"
	}
	cfg.InitialFields = map[string]any{"service": Service}

	return cfg.Build()
}

// Must creates a logger or panics
func Must(development bool) *zap.Logger {
	log, err := New(development)
	if err != nil {
		panic(err)
	}
	return log
}

// Component returns a child logger named after a pipeline component.
// A nil parent yields a no-op logger.
func Component(parent *zap.Logger, name string) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(name)
}
