package main

import (
	"context"
	"fmt"
	"io"

	"github.com/newthinker/edgelab/internal/logger"
	"github.com/newthinker/edgelab/internal/storage/archive"
	"github.com/spf13/cobra"
)

var resultsFormat string

var resultsCmd = &cobra.Command{
	Use:   "results [run-id]",
	Short: "List or show archived analyses",
	Long:  "Without arguments, list the run ids in the result archive. With a run id, print that archived analysis.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	if len(args) == 1 {
		return showResult(cmd.Context(), cmd.OutOrStdout(), store, args[0], resultsFormat)
	}
	return listResults(cmd.Context(), cmd.OutOrStdout(), store, resultsFormat)
}

func listResults(ctx context.Context, out io.Writer, store archive.Storage, format string) error {
	ids, err := archive.ListResults(ctx, store)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(out, ids)
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func showResult(ctx context.Context, out io.Writer, store archive.Storage, runID, format string) error {
	res, err := archive.LoadResult(ctx, store, runID)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(out, res)
	}
	printResult(out, res)
	return nil
}
