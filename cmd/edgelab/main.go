package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "edgelab",
	Short: "edgelab - signal edge validation engine",
	Long: `edgelab tests whether a set of trading signals has a real edge.
It backtests the signals, builds a portfolio, runs significance tests,
walk-forward and Monte Carlo analysis, and checks stability over time.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
