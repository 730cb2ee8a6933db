package domain

import (
	"errors"
	"time"
)

var (
	// ErrPrecondition marks malformed input tables. It aborts the whole run.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNoData means a county has no usable observations in the input.
	ErrNoData = errors.New("no observations")

	// ErrMalformedSeries means a county's rows cannot form a valid series
	// (negative values, zero dates).
	ErrMalformedSeries = errors.New("malformed series")

	// ErrEngineOutput means an estimator returned dates or columns that
	// do not line up with the series it was given.
	ErrEngineOutput = errors.New("inconsistent estimator output")

	// ErrEnginePanic means the estimator panicked on a county's series.
	ErrEnginePanic = errors.New("estimator panicked")

	// ErrNoRun is returned by run stores before any run was recorded.
	ErrNoRun = errors.New("no run recorded")
)

// Observation is one raw row of the county table. A nil Value is a missing
// measurement.
type Observation struct {
	Date   time.Time
	County string
	Value  *float64
}

// CountySeries is a daily series for one county. Values[i] belongs to
// Start + i days; NaN marks a day without a value.
type CountySeries struct {
	County string
	Start  time.Time
	Values []float64
}

// Len returns the number of days in the series.
func (s CountySeries) Len() int { return len(s.Values) }

// Date returns the calendar day of the i-th value.
func (s CountySeries) Date(i int) time.Time {
	return s.Start.AddDate(0, 0, i)
}

// End returns the last calendar day of the series.
func (s CountySeries) End() time.Time {
	if len(s.Values) == 0 {
		return s.Start
	}
	return s.Date(len(s.Values) - 1)
}

// Index returns the offset of day d within the series and whether it falls
// inside it.
func (s CountySeries) Index(d time.Time) (int, bool) {
	i := daysBetween(s.Start, Day(d))
	return i, i >= 0 && i < len(s.Values)
}

// Estimate is one published Rt row.
type Estimate struct {
	Date   time.Time `json:"date"`
	County string    `json:"county"`
	Rt     float64   `json:"rt"`
	Lower  float64   `json:"rt_lci"`
	Upper  float64   `json:"rt_uci"`
}

// CombinedResult is the long-format union of all county estimates.
type CombinedResult []Estimate

// CountyOutcome is the result-or-failure of one county's computation.
type CountyOutcome struct {
	County    string
	Estimates []Estimate
	Err       error
}

// RunSummary describes one batch run. It is diagnostic only.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Processed  []string          `json:"processed"`
	Skipped    map[string]string `json:"skipped"`
	Rows       int               `json:"rows"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
