package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
)

// RtEstimator implements CountyEstimator: prepare the series, run the
// renewal engine, and merge the engine's sub-range back onto the calendar.
type RtEstimator struct {
	engine renewal.Engine
	cfg    renewal.Config
	scale  float64
	logger *slog.Logger
}

// NewEstimator creates an RtEstimator. scale is the pseudo-count multiplier
// applied to the signal before rounding.
func NewEstimator(engine renewal.Engine, cfg renewal.Config, scale float64, logger *slog.Logger) *RtEstimator {
	return &RtEstimator{
		engine: engine,
		cfg:    cfg,
		scale:  scale,
		logger: logger,
	}
}

// EstimateCounty implements CountyEstimator.
func (e *RtEstimator) EstimateCounty(ctx context.Context, county string, rows []domain.Observation) ([]domain.Estimate, error) {
	series, err := domain.PrepareSeries(county, rows, e.scale)
	if err != nil {
		return nil, err
	}

	out, err := e.engine.Estimate(ctx, renewal.Series{Start: series.Start, Values: series.Values}, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("county %s: %w", county, err)
	}

	estimates, err := domain.MergeBack(series, out.Dates, out.Median, out.Lower, out.Upper)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("series estimated",
		"county", county,
		"days", series.Len(),
		"estimates", len(estimates),
	)
	return estimates, nil
}
