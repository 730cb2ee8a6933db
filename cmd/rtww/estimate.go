package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/pipeline"
)

var (
	estimateInput  string
	estimateOutput string
	estimateSignal string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate Rt for every county from the county table",
	Long: `Reads the per-county daily table, estimates Rt county by county and writes
the combined table. Counties that cannot be estimated are logged and skipped.

Examples:
  rtww estimate --input output/data_ww_CA_county.csv --signal Cases_N
  SQLITE_PATH=rt.db rtww estimate`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("input") {
			cfg.InputPath = estimateInput
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputPath = estimateOutput
		}
		if cmd.Flags().Changed("signal") {
			cfg.SignalColumn = estimateSignal
		}
		return runOnce(cmd.Context(), nil)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateInput, "input", "", "county table path (default: INPUT_PATH)")
	estimateCmd.Flags().StringVar(&estimateOutput, "output", "", "Rt table path (default: OUTPUT_PATH)")
	estimateCmd.Flags().StringVar(&estimateSignal, "signal", "", "signal column (default: SIGNAL_COLUMN)")
}

func runOnce(ctx context.Context, source pipeline.SeriesSource) error {
	a, err := newApp(source)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close sinks", "error", err)
		}
	}()

	summary, err := a.pipeline.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, summary, cfg.OutputPath)
	return nil
}

// printSummary reports a finished run, skipped counties in name order.
func printSummary(w io.Writer, summary domain.RunSummary, outputPath string) {
	fmt.Fprintf(w, "run %s: %d counties estimated, %d skipped, %d rows -> %s\n",
		summary.RunID, len(summary.Processed), len(summary.Skipped), summary.Rows, outputPath)
	for _, county := range slices.Sorted(maps.Keys(summary.Skipped)) {
		fmt.Fprintf(w, "  skipped %-16s %s\n", county, summary.Skipped[county])
	}
}
