// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option adjusts the zap configuration before it is built.
type Option func(*zap.Config) error

// WithLevel sets the minimum level by name ("debug", "info", ...). An empty
// name keeps the preset level.
func WithLevel(name string) Option {
	return func(cfg *zap.Config) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		level, err := zapcore.ParseLevel(name)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
		return nil
	}
}

// New builds a zap.Logger configured for development or production.
func New(development bool, opts ...Option) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
