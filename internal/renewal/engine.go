// Package renewal defines the contract of a renewal-equation Rt estimator and
// ships a Cori-style implementation of it.
//
// An Engine receives a daily incidence-like series and returns a daily Rt
// posterior summary (mean, median, 2.5% and 97.5% quantiles) for a sub-range
// of the input: the first days are lost to the lead-in the method needs, the
// last days to forward smoothing. Callers treat the engine as a black box and
// swap it for a fake in tests.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Series is a daily incidence proxy starting at Start. NaN is allowed only
// at the boundaries.
type Series struct {
	Start  time.Time
	Values []float64
}

// Output is the engine's daily posterior summary. All slices share the
// length of Dates.
type Output struct {
	Dates  []time.Time
	Mean   []float64
	Median []float64
	Lower  []float64 // 2.5% quantile
	Upper  []float64 // 97.5% quantile
}

// Len returns the number of estimated days.
func (o Output) Len() int { return len(o.Dates) }

// Config tunes the estimator.
type Config struct {
	// Window is the number of days pooled into each Rt estimate (tau).
	Window int
	// SmoothingWindow is the odd width of the centered moving average
	// applied to incidence before estimation.
	SmoothingWindow int

	// Serial interval, discretized from a gamma distribution.
	SerialIntervalMean    float64
	SerialIntervalSD      float64
	SerialIntervalMaxDays int

	// Gamma prior on Rt (shape, scale).
	PriorShape float64
	PriorScale float64
}

// DefaultConfig mirrors the defaults of the COVID-19 estimator the series
// were originally calibrated against.
func DefaultConfig() Config {
	return Config{
		Window:                7,
		SmoothingWindow:       7,
		SerialIntervalMean:    4.7,
		SerialIntervalSD:      2.9,
		SerialIntervalMaxDays: 20,
		PriorShape:            1,
		PriorScale:            5,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Window < 1:
		return errors.New("window must be at least 1 day")
	case c.SmoothingWindow < 1 || c.SmoothingWindow%2 == 0:
		return errors.New("smoothing window must be a positive odd number of days")
	case c.SerialIntervalMean <= 0 || c.SerialIntervalSD <= 0:
		return errors.New("serial interval mean and sd must be positive")
	case c.SerialIntervalMaxDays < 1:
		return errors.New("serial interval must span at least 1 day")
	case c.PriorShape <= 0 || c.PriorScale <= 0:
		return errors.New("prior shape and scale must be positive")
	}
	return nil
}

// LeadIn is the number of observed days before the first estimate.
func (c Config) LeadIn() int {
	return c.SmoothingWindow/2 + c.Window
}

// MinLength is the shortest observed series that yields one estimate.
func (c Config) MinLength() int {
	return c.LeadIn() + 1 + c.SmoothingWindow/2
}

// Engine estimates Rt from a daily incidence-like series.
type Engine interface {
	Estimate(ctx context.Context, series Series, cfg Config) (Output, error)
}

// Failure is an estimation failure that only affects the series at hand.
type Failure struct {
	reason string
	msg    string
}

func (f *Failure) Error() string { return f.msg }

// Reason is a short label for logs and metrics.
func (f *Failure) Reason() string { return f.reason }

var (
	// ErrInsufficientHistory means the series is shorter than the lead-in
	// plus smoothing the method needs.
	ErrInsufficientHistory = &Failure{reason: "insufficient_history", msg: "insufficient history"}

	// ErrNumerical means the posterior could not be computed, for example
	// because there is no infectiousness to attribute cases to.
	ErrNumerical = &Failure{reason: "numerical", msg: "numerical failure"}
)

func insufficient(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInsufficientHistory}, args...)...)
}

func numerical(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNumerical}, args...)...)
}
