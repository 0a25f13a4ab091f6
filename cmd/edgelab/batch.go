package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/dataset"
	"github.com/newthinker/edgelab/internal/logger"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchWorkers int
	batchSave    bool
	batchFormat  string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dataset>...",
	Short: "Analyze several datasets concurrently",
	Long:  "Run the full analysis on every dataset prefix in the configured storage and print one summary row per run.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "concurrent runs (default from config)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "archive each result in the configured storage")
	batchCmd.Flags().StringVarP(&batchFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := dataset.NewLoader(store, logger.Component(log, "dataset"))
	reqs := make([]analysis.Request, 0, len(args))
	for _, prefix := range args {
		ds, err := loader.Load(ctx, prefix)
		if err != nil {
			return fmt.Errorf("loading dataset %s: %w", prefix, err)
		}
		reqs = append(reqs, analysis.Request{
			Name:    prefix,
			Signals: ds.Signals,
			Prices:  ds.Prices,
			Options: opts,
		})
	}

	workers := batchWorkers
	if workers <= 0 {
		workers = cfg.Server.Workers
	}
	runner := analysis.NewRunner(strategies, nil, logger.Component(log, "analysis"))
	outcomes, err := analysis.NewPool(runner, workers, log).RunAll(ctx, reqs)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			log.Error("analysis failed", zap.String("name", o.Name), zap.Error(o.Err))
			continue
		}
		if batchSave {
			if _, err := archive.SaveResult(ctx, store, o.Result); err != nil {
				log.Warn("archiving result failed", zap.String("name", o.Name), zap.Error(err))
			}
		}
	}

	if batchFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), outcomes); err != nil {
			return err
		}
	} else {
		printOutcomes(cmd, outcomes)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(outcomes))
	}
	return nil
}

func printOutcomes(cmd *cobra.Command, outcomes []analysis.Outcome) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tTRADES\tWIN RATE\tTOTAL\tSHARPE\tP-VALUE\tSTATUS")
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%s\n", o.Name, o.Err)
			continue
		}
		r := o.Result
		pValue := "-"
		if r.Significance != nil {
			pValue = fmt.Sprintf("%.4f", r.Significance.PValue)
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f%%\t%.2f\t%s\tok\n",
			o.Name, len(r.Trades), r.Metrics.WinRate, r.Metrics.TotalReturn, r.Metrics.SharpeRatio, pValue)
	}
	w.Flush()
}
