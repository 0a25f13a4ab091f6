package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/newthinker/edgelab/internal/analysis"
	"github.com/newthinker/edgelab/internal/backtest"
	"github.com/newthinker/edgelab/internal/config"
	"github.com/newthinker/edgelab/internal/dataset"
	"github.com/newthinker/edgelab/internal/logger"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeDir      string
	analyzeStrategy string
	analyzeName     string
	analyzeFormat   string
	analyzeSave     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [dataset]",
	Short: "Run the full analysis on one dataset",
	Long: `Load prices and signals for a dataset and run every enabled stage.
The dataset is a prefix in the configured storage, or a local directory
given with --dir that holds prices/<TICKER>.csv and signals.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDir, "dir", "", "local dataset directory")
	analyzeCmd.Flags().StringVar(&analyzeStrategy, "strategy", "", "generate signals with a registered strategy")
	analyzeCmd.Flags().StringVar(&analyzeName, "name", "", "run name")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "output", "o", "text", "output format: text or json")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "archive the result in the configured storage")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	if (len(args) == 0) == (analyzeDir == "") {
		return fmt.Errorf("give either a dataset prefix or --dir")
	}
	if analyzeFormat != "text" && analyzeFormat != "json" {
		return fmt.Errorf("unknown output format %q", analyzeFormat)
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, prefix, err := datasetSource(cfg, analyzeDir, args)
	if err != nil {
		return err
	}
	ds, err := dataset.NewLoader(source, logger.Component(log, "dataset")).Load(ctx, prefix)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	name := analyzeName
	if name == "" {
		name = prefix
	}
	runner := analysis.NewRunner(strategies, nil, logger.Component(log, "analysis"))
	res, err := runner.Run(ctx, analysis.Request{
		Name:     name,
		Signals:  ds.Signals,
		Prices:   ds.Prices,
		Strategy: analyzeStrategy,
		Options:  opts,
	})
	if err != nil {
		return err
	}

	if analyzeSave {
		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		p, err := archive.SaveResult(ctx, store, res)
		if err != nil {
			return err
		}
		log.Info("result archived", zap.String("path", p))
	}

	if analyzeFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

// datasetSource resolves where a dataset is read from. A local directory
// is opened as its own store with an empty prefix.
func datasetSource(cfg *config.Config, dir string, args []string) (archive.Storage, string, error) {
	if dir != "" {
		st, err := archive.NewLocalFS(dir)
		return st, "", err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("opening storage: %w", err)
	}
	return st, args[0], nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(out io.Writer, res *analysis.Result) {
	fmt.Fprintf(out, "=== edgelab analysis %s ===\n", res.RunID)
	if res.Name != "" {
		fmt.Fprintf(out, "Name:     %s\n", res.Name)
	}
	fmt.Fprintf(out, "Signals:  %d\n", res.Signals)
	fmt.Fprintf(out, "Trades:   %d\n", len(res.Trades))
	reasons := make([]string, 0, len(res.Skipped))
	for reason := range res.Skipped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(out, "Skipped:  %d (%s)\n", res.Skipped[backtest.SkipReason(reason)], reason)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	m := res.Metrics
	fmt.Fprintln(w, "METRIC\tVALUE")
	fmt.Fprintf(w, "Win rate\t%.2f%%\n", m.WinRate)
	fmt.Fprintf(w, "Avg win / loss\t%.2f%% / %.2f%%\n", m.AvgWin, m.AvgLoss)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Total return\t%.2f%%\n", m.TotalReturn)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", m.MaxDrawdown)
	fmt.Fprintf(w, "Sharpe / Sortino\t%.2f / %.2f\n", m.SharpeRatio, m.SortinoRatio)

	if s := res.Significance; s != nil {
		fmt.Fprintf(w, "t-stat (p)\t%.3f (%.4f)\n", s.TStatistic, s.PValue)
		fmt.Fprintf(w, "Significant\t%v\n", s.IsSignificant)
		if s.HasBenchmark {
			fmt.Fprintf(w, "Alpha / Beta\t%.3f / %.3f\n", s.Alpha, s.Beta)
		}
	}
	if p := res.Portfolio; p != nil {
		fmt.Fprintf(w, "Portfolio return\t%.2f%%\n", p.Metrics.TotalReturn)
		fmt.Fprintf(w, "Portfolio max drawdown\t%.2f%%\n", p.Metrics.MaxDrawdown)
	}
	if wf := res.WalkForward; wf != nil {
		fmt.Fprintf(w, "Walk-forward IS / OOS\t%.2f%% / %.2f%%\n", wf.InSampleAvgReturn, wf.OutSampleAvgReturn)
		fmt.Fprintf(w, "Robustness\t%.2f\n", wf.RobustnessScore)
	}
	if mc := res.MonteCarlo; mc != nil {
		fmt.Fprintf(w, "MC P(profit)\t%.1f%%\n", mc.ProbabilityOfProfit*100)
		fmt.Fprintf(w, "MC VaR95 / CVaR95\t%.2f%% / %.2f%%\n", mc.VaR95, mc.CVaR95)
	}
	if v := res.Validation; v != nil {
		fmt.Fprintf(w, "Profitable windows\t%.0f%% of %d\n", v.ProfitableShare*100, len(v.Windows))
	}
	w.Flush()
}
