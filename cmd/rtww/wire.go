package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/cache"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/csvfile"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/kafka"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/sqlite"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/pipeline"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
)

// app holds the wired pipeline and the resources to release after it.
type app struct {
	pipeline *pipeline.Pipeline
	store    *sqlite.Store
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// newApp wires the estimation pipeline from cfg. source overrides the CSV
// input when non-nil.
func newApp(source pipeline.SeriesSource) (*app, error) {
	rc := cfg.Renewal()
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("renewal config: %w", err)
	}

	engine := cache.NewEngine(renewal.NewCori(), cfg.CacheSize, metrics)
	estimator := pipeline.NewEstimator(engine, rc, cfg.ScaleFactor, logger)

	if source == nil {
		source = csvfile.NewSource(cfg.InputPath, cfg.SignalColumn)
	}

	a := &app{}
	sinks := []pipeline.ResultSink{csvfile.NewSink(cfg.OutputPath)}

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
		sinks = append(sinks, store)
		logger.Info("sqlite sink enabled", "path", cfg.SQLitePath)
	}

	if len(cfg.KafkaBrokers) > 0 {
		w := kafka.NewWriter(cfg, logger)
		a.closers = append(a.closers, w.Close)
		sinks = append(sinks, w)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaRtTopic)
	}

	a.pipeline = pipeline.New(source, estimator, sinks, ref.Counties, cfg.Workers,
		clockwork.NewRealClock(), logger, metrics)
	return a, nil
}

// rebuildingSource rebuilds the county table before reading it, so every
// scheduled run sees the latest exports.
type rebuildingSource struct {
	download bool
	next     *csvfile.Source
}

func (s *rebuildingSource) LoadObservations(ctx context.Context) ([]domain.Observation, error) {
	if _, err := buildSeries(ctx, s.download); err != nil {
		return nil, err
	}
	return s.next.LoadObservations(ctx)
}

func newRebuildingSource(download bool) *rebuildingSource {
	return &rebuildingSource{
		download: download,
		next:     csvfile.NewSource(cfg.SeriesPath, cfg.SignalColumn),
	}
}
