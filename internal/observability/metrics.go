// Package observability holds the Prometheus metrics for estimation runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rtww"

// Metrics holds the Prometheus counters, histograms, and gauges for Rt runs.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: outcome={success,failed}
	RunDuration      prometheus.Histogram
	PipelineRunning  prometheus.Gauge
	LastSuccessEpoch prometheus.Gauge

	// Per-county outcomes.
	CountiesProcessed prometheus.Counter
	CountiesSkipped   *prometheus.CounterVec // labels: reason
	RowsEmitted       prometheus.Counter

	// Estimator metrics.
	EngineDuration prometheus.Histogram
	EngineCache    *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccessEpoch,
		m.CountiesProcessed,
		m.CountiesSkipped,
		m.RowsEmitted,
		m.EngineDuration,
		m.EngineCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed estimation runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load-estimate-write run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccessEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time at which the last successful run finished.",
		}),
		CountiesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counties_processed_total",
			Help:      "Counties that produced an Rt series.",
		}),
		CountiesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counties_skipped_total",
			Help:      "Counties skipped by reason.",
		}, []string{"reason"}),
		RowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_emitted_total",
			Help:      "Rt rows written to the result sinks.",
		}),
		EngineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_duration_seconds",
			Help:      "Duration of one county's Rt estimation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		EngineCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_cache_total",
			Help:      "Estimate cache lookups by result.",
		}, []string{"result"}),
	}
}
