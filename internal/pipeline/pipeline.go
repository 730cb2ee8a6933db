// Package pipeline runs the per-county Rt estimation: load the county table,
// estimate every enumerated county on a bounded worker pool, assemble the
// combined result and hand it to the sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/observability"
)

// SeriesSource reads the raw per-county observations.
type SeriesSource interface {
	LoadObservations(ctx context.Context) ([]domain.Observation, error)
}

// CountyEstimator turns one county's observations into Rt rows.
type CountyEstimator interface {
	EstimateCounty(ctx context.Context, county string, rows []domain.Observation) ([]domain.Estimate, error)
}

// ResultSink persists a run's combined result.
type ResultSink interface {
	Name() string
	WriteResults(ctx context.Context, summary domain.RunSummary, rows domain.CombinedResult) error
}

// Pipeline orchestrates one estimation run over the county enumeration.
type Pipeline struct {
	source    SeriesSource
	estimator CountyEstimator
	sinks     []ResultSink
	counties  []string
	workers   int
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	retryAttempts   int
	retryBackoff    time.Duration
	retryMaxBackoff time.Duration

	ready   atomic.Bool
	mu      sync.Mutex
	lastRun domain.RunSummary
}

// New creates a Pipeline over counties, in enumeration order. workers bounds
// how many counties are estimated at once.
func New(source SeriesSource, estimator CountyEstimator, sinks []ResultSink, counties []string, workers int,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		source:    source,
		estimator: estimator,
		sinks:     sinks,
		counties:  counties,
		workers:   workers,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// SetRetry makes Serve repeat a failed run up to attempts times, waiting
// backoff before the first retry and doubling it up to maxBackoff.
func (p *Pipeline) SetRetry(attempts int, backoff, maxBackoff time.Duration) {
	p.retryAttempts = attempts
	p.retryBackoff = backoff
	p.retryMaxBackoff = maxBackoff
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no estimation run has completed yet")
	}
	return nil
}

// LastRun returns the summary of the last successful run.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun, p.ready.Load()
}

// Run executes one load-estimate-write cycle. A county failure is recorded
// in the summary and never aborts the run; a source or sink failure does.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary := domain.NewRunSummary(p.clock)
	logger := p.logger.With("run_id", summary.RunID)
	logger.Info("run started", "counties", len(p.counties), "workers", p.workers)

	summary, err := p.run(ctx, summary, logger)
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("failed").Inc()
		logger.Error("run failed", "error", err)
		return summary, err
	}

	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	p.metrics.LastSuccessEpoch.Set(float64(summary.FinishedAt.Unix()))
	p.metrics.RowsEmitted.Add(float64(summary.Rows))

	p.mu.Lock()
	p.lastRun = summary
	p.mu.Unlock()
	p.ready.Store(true)

	logger.Info("run finished",
		"processed", len(summary.Processed),
		"skipped", len(summary.Skipped),
		"rows", summary.Rows,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, summary domain.RunSummary, logger *slog.Logger) (domain.RunSummary, error) {
	observations, err := p.source.LoadObservations(ctx)
	if err != nil {
		return summary, fmt.Errorf("load observations: %w", err)
	}

	byCounty := make(map[string][]domain.Observation, len(p.counties))
	for _, o := range observations {
		byCounty[o.County] = append(byCounty[o.County], o)
	}

	outcomes, err := p.estimateAll(ctx, byCounty)
	if err != nil {
		return summary, err
	}

	for _, o := range outcomes {
		summary.Record(o)
		if o.Err != nil {
			reason := domain.SkipReason(o.Err)
			p.metrics.CountiesSkipped.WithLabelValues(reason).Inc()
			logger.Warn("county skipped", "county", o.County, "reason", reason, "error", o.Err)
			continue
		}
		p.metrics.CountiesProcessed.Inc()
		logger.Debug("county estimated", "county", o.County, "rows", len(o.Estimates))
	}

	result := domain.Assemble(outcomes)
	summary.Finish(p.clock, len(result))

	for _, sink := range p.sinks {
		if err := sink.WriteResults(ctx, summary, result); err != nil {
			return summary, fmt.Errorf("sink %s: %w", sink.Name(), err)
		}
	}
	return summary, nil
}

// estimateAll fans the counties out to the worker pool. Each worker writes
// only its own slot, so outcomes keep enumeration order.
func (p *Pipeline) estimateAll(ctx context.Context, byCounty map[string][]domain.Observation) ([]domain.CountyOutcome, error) {
	outcomes := make([]domain.CountyOutcome, len(p.counties))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, county := range p.counties {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = p.estimateCounty(gctx, county, byCounty[county])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (p *Pipeline) estimateCounty(ctx context.Context, county string, rows []domain.Observation) (outcome domain.CountyOutcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("county estimator panicked", "county", county, "panic", r, "stack", string(debug.Stack()))
			outcome = domain.CountyOutcome{County: county, Err: fmt.Errorf("county %s: %w: %v", county, domain.ErrEnginePanic, r)}
		}
	}()

	if len(rows) == 0 {
		return domain.CountyOutcome{County: county, Err: fmt.Errorf("county %s: %w", county, domain.ErrNoData)}
	}

	start := p.clock.Now()
	estimates, err := p.estimator.EstimateCounty(ctx, county, rows)
	p.metrics.EngineDuration.Observe(p.clock.Since(start).Seconds())

	return domain.CountyOutcome{County: county, Estimates: estimates, Err: err}
}

// Serve runs the pipeline immediately and then once per interval until ctx
// is cancelled. A failed run is retried with backoff as set by SetRetry,
// then left to the next tick.
func (p *Pipeline) Serve(ctx context.Context, interval time.Duration) error {
	p.logger.Info("scheduler started", "interval", interval)

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.runWithRetry(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

func (p *Pipeline) runWithRetry(ctx context.Context) {
	backoff := p.retryBackoff
	for attempt := 0; ; attempt++ {
		// Errors are already logged by Run.
		if _, err := p.Run(ctx); err == nil || ctx.Err() != nil || attempt >= p.retryAttempts {
			return
		}
		p.logger.Warn("retrying failed run", "attempt", attempt+1, "of", p.retryAttempts, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return
		}
		backoff = retry.NextBackoff(backoff, p.retryMaxBackoff)
	}
}
