package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/csvfile"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/upstream"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/builder"
)

var (
	buildDownload bool
	buildScan     string
	buildEurofins string
	buildOut      string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the per-county daily series from the site exports",
	Long: `Merges the SCAN export with the Eurofins export, keeps the largest plant per
county and writes one row per county and day.

Examples:
  # Fetch the latest SCAN export first
  rtww build --download

  # Explicit paths, SCAN only
  rtww build --scan data/data.csv --eurofins "" --out output/data_ww_CA_county.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyBuildFlags(cmd)
		_, err := buildSeries(cmd.Context(), buildDownload)
		return err
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildDownload, "download", false, "fetch the SCAN export from UPSTREAM_URL before building")
	buildCmd.Flags().StringVar(&buildScan, "scan", "", "SCAN export path (default: SCAN_PATH)")
	buildCmd.Flags().StringVar(&buildEurofins, "eurofins", "", "Eurofins export path, empty to skip (default: EUROFINS_PATH)")
	buildCmd.Flags().StringVar(&buildOut, "out", "", "county table path (default: SERIES_PATH)")
}

func applyBuildFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("scan") {
		cfg.ScanPath = buildScan
	}
	if cmd.Flags().Changed("eurofins") {
		cfg.EurofinsPath = buildEurofins
	}
	if cmd.Flags().Changed("out") {
		cfg.SeriesPath = buildOut
	}
}

// buildSeries optionally downloads the SCAN export, then writes the county
// table to cfg.SeriesPath.
func buildSeries(ctx context.Context, download bool) (builder.Result, error) {
	if download {
		client := upstream.NewClient(cfg.UpstreamTimeout, upstream.Retry{
			Attempts:   cfg.UpstreamRetries,
			Backoff:    cfg.UpstreamRetryBackoff,
			MaxBackoff: cfg.MaxRetryBackoff,
		}, logger)
		err := csvfile.WriteFileAtomic(cfg.ScanPath, func(w io.Writer) error {
			_, err := client.Fetch(ctx, cfg.UpstreamURL, w)
			return err
		})
		if err != nil {
			return builder.Result{}, fmt.Errorf("download scan export: %w", err)
		}
	}

	res, err := builder.New(ref, logger).BuildFiles(ctx, cfg.ScanPath, cfg.EurofinsPath, cfg.SeriesPath)
	if err != nil {
		return builder.Result{}, fmt.Errorf("build county table: %w", err)
	}
	for county, site := range res.Sites {
		logger.Debug("county plant selected", "county", county, "city", site)
	}
	return res, nil
}
