package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/api"
	"github.com/newthinker/edgelab/internal/api/job"
	"github.com/newthinker/edgelab/internal/logger"
	"github.com/newthinker/edgelab/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edgelab API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if cfg.Server.Mode == "debug" && !debug {
		log = logger.Must(true)
	}

	opts, err := cfg.Analysis.Options()
	if err != nil {
		return err
	}
	strategies, err := buildStrategies(cfg, logger.Component(log, "strategy"))
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	var reg *metrics.Registry
	metricsPath := ""
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		metricsPath = cfg.Metrics.Path
	}

	runner := analysis.NewRunner(strategies, reg, logger.Component(log, "analysis"))
	jobs := job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour)

	log.Info("starting edgelab server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Type),
		zap.Strings("strategies", strategies.Names()),
	)

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MetricsPath: metricsPath,
		MaxRunning:  cfg.Server.Workers,
		Defaults:    opts,
	}, api.Dependencies{
		Runner:     runner,
		Jobs:       jobs,
		Strategies: strategies,
		Store:      store,
		Metrics:    reg,
	}, logger.Component(log, "api"))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down edgelab server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
