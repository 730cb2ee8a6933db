package main

import (
	"github.com/spf13/cobra"
)

var runDownload bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the county table, then estimate Rt from it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyBuildFlags(cmd)
		return runOnce(cmd.Context(), newRebuildingSource(runDownload))
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDownload, "download", false, "fetch the SCAN export from UPSTREAM_URL before building")
	runCmd.Flags().StringVar(&buildScan, "scan", "", "SCAN export path (default: SCAN_PATH)")
	runCmd.Flags().StringVar(&buildEurofins, "eurofins", "", "Eurofins export path, empty to skip (default: EUROFINS_PATH)")
	runCmd.Flags().StringVar(&buildOut, "out", "", "county table path (default: SERIES_PATH)")
}
