package main

import (
	"fmt"

	"github.com/newthinker/edgelab/internal/config"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"github.com/newthinker/edgelab/internal/strategy"
	"github.com/newthinker/edgelab/internal/strategy/ma_crossover"
	"go.uber.org/zap"
)

// loadConfig reads and validates the configuration named by --config.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// buildStrategies registers the strategies enabled in cfg.
func buildStrategies(cfg *config.Config, log *zap.Logger) (*strategy.Registry, error) {
	reg := strategy.NewRegistry(log)

	available := map[string]func() strategy.Strategy{
		"ma_crossover": func() strategy.Strategy { return ma_crossover.New(5, 20) },
	}

	for name, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		factory, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q in config", name)
		}
		s := factory()
		if err := s.Init(strategy.Config{Params: sc.Params}); err != nil {
			return nil, fmt.Errorf("init strategy %s: %w", name, err)
		}
		reg.Register(s)
		log.Debug("strategy registered", zap.String("strategy", name))
	}
	return reg, nil
}

// openStore opens the configured archive backend.
func openStore(cfg *config.Config) (archive.Storage, error) {
	return archive.New(archive.Config{
		Type: cfg.Storage.Type,
		Path: cfg.Storage.Path,
		S3: archive.S3Config{
			Bucket:    cfg.Storage.S3.Bucket,
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Prefix:    cfg.Storage.S3.Prefix,
		},
	})
}
