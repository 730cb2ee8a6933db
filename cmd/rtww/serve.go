package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	httpadapter "github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/http"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/pipeline"
)

var (
	serveRebuild  bool
	serveDownload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the estimation on a schedule behind health and metrics endpoints",
	Long: `Runs the pipeline immediately and then every RUN_INTERVAL, serving /healthz,
/readyz, /runs/latest and /metrics on HTTP_ADDR until interrupted. With
SQLITE_PATH set, /runs/latest answers from the store after a restart and
/estimates[/{county}] lists the stored rows.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var source pipeline.SeriesSource
		if serveRebuild {
			source = newRebuildingSource(serveDownload)
		}
		a, err := newApp(source)
		if err != nil {
			return err
		}
		a.pipeline.SetRetry(cfg.RunRetries, cfg.RunRetryBackoff, cfg.MaxRetryBackoff)

		var store httpadapter.RunStore
		if a.store != nil {
			store = a.store
		}
		srv := httpadapter.NewServer(cfg.HTTPAddr, a.pipeline, store, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()

		done := make(chan error, 1)
		go func() { done <- a.pipeline.Serve(ctx, cfg.RunInterval) }()

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("scheduler did not stop before the shutdown timeout")
		}
		if err := a.Close(); err != nil {
			logger.Error("close sinks", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveRebuild, "rebuild", false, "rebuild the county table before every run")
	serveCmd.Flags().BoolVar(&serveDownload, "download", false, "with --rebuild, fetch the SCAN export first")
}
