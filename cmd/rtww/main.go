package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/config"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/observability"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/reference"
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	ref     *reference.Dataset
)

var rootCmd = &cobra.Command{
	Use:   "rtww",
	Short: "Wastewater Rt estimation for California counties",
	Long: `Builds the per-county daily wastewater series from the SCAN and Eurofins
exports and estimates the effective reproduction number Rt for every
enumerated county, with a 95% credible interval.

Settings come from environment variables; flags override the paths.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
		metrics = observability.NewMetrics()

		ref = reference.Default()
		if cfg.ReferencePath != "" {
			if ref, err = reference.Load(cfg.ReferencePath); err != nil {
				return fmt.Errorf("load reference: %w", err)
			}
		}
		logger.Debug("reference loaded", "version", ref.Version, "counties", len(ref.Counties))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd, estimateCmd, runCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
