package renewal

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Posterior quantiles reported for every estimated day.
const (
	lowerQuantile = 0.025
	upperQuantile = 0.975
)

// Cori estimates Rt with the Cori et al. (2013) gamma posterior over a
// sliding window, applied to a moving-average smoothed incidence series.
// It is deterministic: identical input yields identical output.
type Cori struct{}

// NewCori returns the Cori engine.
func NewCori() *Cori { return &Cori{} }

// Estimate implements Engine.
func (*Cori) Estimate(ctx context.Context, series Series, cfg Config) (Output, error) {
	if err := cfg.Validate(); err != nil {
		return Output{}, numerical("config: %v", err)
	}

	lo, hi, ok := finiteSpan(series.Values)
	if !ok {
		return Output{}, insufficient("no observed values")
	}
	core := series.Values[lo : hi+1]
	for i, v := range core {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Output{}, numerical("gap at day %d inside the observed span", lo+i)
		}
		if v < 0 {
			return Output{}, numerical("negative incidence %g at day %d", v, lo+i)
		}
	}
	if len(core) < cfg.MinLength() {
		return Output{}, insufficient("%d observed days, need at least %d", len(core), cfg.MinLength())
	}

	half := cfg.SmoothingWindow / 2
	incidence := smooth(core, half)
	w := SerialInterval(cfg.SerialIntervalMean, cfg.SerialIntervalSD, cfg.SerialIntervalMaxDays)
	lambda := infectiousness(incidence, w)

	// incidence[k] is observed day lo+half+k of the input.
	origin := series.Start.AddDate(0, 0, lo+half)
	n := len(incidence) - cfg.Window
	out := Output{
		Dates:  make([]time.Time, 0, n),
		Mean:   make([]float64, 0, n),
		Median: make([]float64, 0, n),
		Lower:  make([]float64, 0, n),
		Upper:  make([]float64, 0, n),
	}

	for t := cfg.Window; t < len(incidence); t++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		from := t - cfg.Window + 1
		cases := floats.Sum(incidence[from : t+1])
		infectious := floats.Sum(lambda[from : t+1])
		if infectious <= 0 {
			return Output{}, numerical("no infectiousness in window ending %s", origin.AddDate(0, 0, t).Format(time.DateOnly))
		}

		post := distuv.Gamma{
			Alpha: cfg.PriorShape + cases,
			Beta:  1/cfg.PriorScale + infectious,
		}
		mean := post.Mean()
		median := post.Quantile(0.5)
		lower := post.Quantile(lowerQuantile)
		upper := post.Quantile(upperQuantile)
		if !allFinite(mean, median, lower, upper) {
			return Output{}, numerical("posterior not finite for window ending %s", origin.AddDate(0, 0, t).Format(time.DateOnly))
		}

		out.Dates = append(out.Dates, origin.AddDate(0, 0, t))
		out.Mean = append(out.Mean, mean)
		out.Median = append(out.Median, median)
		out.Lower = append(out.Lower, math.Min(lower, median))
		out.Upper = append(out.Upper, math.Max(upper, median))
	}

	return out, nil
}

// SerialInterval discretizes a gamma serial interval with the given mean and
// standard deviation onto days 1..maxDays. w[0] is always 0 (no same-day
// transmission) and w[1:] sums to 1.
func SerialInterval(mean, sd float64, maxDays int) []float64 {
	g := distuv.Gamma{
		Alpha: (mean / sd) * (mean / sd),
		Beta:  mean / (sd * sd),
	}
	w := make([]float64, maxDays+1)
	for d := 1; d <= maxDays; d++ {
		w[d] = g.CDF(float64(d)) - g.CDF(float64(d-1))
	}
	if total := floats.Sum(w); total > 0 {
		floats.Scale(1/total, w)
	}
	return w
}

// smooth returns the centered moving average of width 2*half+1. The result
// is 2*half shorter than the input: no partial windows at the edges.
func smooth(values []float64, half int) []float64 {
	if half == 0 {
		return append([]float64(nil), values...)
	}
	out := make([]float64, 0, len(values)-2*half)
	for i := half; i < len(values)-half; i++ {
		out = append(out, stat.Mean(values[i-half:i+half+1], nil))
	}
	return out
}

// infectiousness computes lambda[t] = sum_{s>=1} incidence[t-s] * w[s] over
// the history available at t, divided by the serial-interval mass that
// history covers. Early days with less than a full serial interval behind
// them are therefore not biased low.
func infectiousness(incidence, w []float64) []float64 {
	lambda := make([]float64, len(incidence))
	for t := range incidence {
		var sum, mass float64
		for s := 1; s < len(w) && s <= t; s++ {
			sum += incidence[t-s] * w[s]
			mass += w[s]
		}
		if mass > 0 {
			lambda[t] = sum / mass
		}
	}
	return lambda
}

func finiteSpan(values []float64) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	return lo, hi, lo >= 0
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
