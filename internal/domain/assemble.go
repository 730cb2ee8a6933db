package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MergeBack places an estimator's daily output onto the county's calendar.
// Only days returned by the estimator get a row; rows with a non-finite
// value are dropped. Dates outside the series, dates out of order and
// intervals that do not contain the median are errors.
func MergeBack(series CountySeries, dates []time.Time, rt, lower, upper []float64) ([]Estimate, error) {
	n := len(dates)
	if len(rt) != n || len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("county %s: %d dates but %d/%d/%d values: %w",
			series.County, n, len(rt), len(lower), len(upper), ErrEngineOutput)
	}

	out := make([]Estimate, 0, n)
	last := -1
	for i, d := range dates {
		idx, ok := series.Index(d)
		if !ok {
			return nil, fmt.Errorf("county %s: date %s outside %s..%s: %w",
				series.County, d.Format(time.DateOnly),
				series.Start.Format(time.DateOnly), series.End().Format(time.DateOnly), ErrEngineOutput)
		}
		if idx <= last {
			return nil, fmt.Errorf("county %s: date %s not increasing: %w",
				series.County, d.Format(time.DateOnly), ErrEngineOutput)
		}
		last = idx

		e := Estimate{
			Date:   series.Date(idx),
			County: series.County,
			Rt:     rt[i],
			Lower:  lower[i],
			Upper:  upper[i],
		}
		if !e.Complete() {
			continue
		}
		if e.Lower > e.Rt || e.Rt > e.Upper {
			return nil, fmt.Errorf("county %s: interval [%g, %g] does not bracket %g on %s: %w",
				series.County, e.Lower, e.Upper, e.Rt, d.Format(time.DateOnly), ErrEngineOutput)
		}
		out = append(out, e)
	}
	return out, nil
}

// Complete reports whether every field of the row is set.
func (e Estimate) Complete() bool {
	return !e.Date.IsZero() && e.County != "" && finite(e.Rt) && finite(e.Lower) && finite(e.Upper)
}

// Assemble concatenates successful county outcomes into the published table:
// incomplete rows dropped, sorted by (County, Date), one row per pair.
func Assemble(outcomes []CountyOutcome) CombinedResult {
	var total int
	for _, o := range outcomes {
		if o.Err == nil {
			total += len(o.Estimates)
		}
	}

	rows := make(CombinedResult, 0, total)
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		for _, e := range o.Estimates {
			if e.Complete() {
				rows = append(rows, e)
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].County != rows[j].County {
			return rows[i].County < rows[j].County
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	deduped := rows[:0]
	for _, e := range rows {
		if n := len(deduped); n > 0 && deduped[n-1].County == e.County && deduped[n-1].Date.Equal(e.Date) {
			continue
		}
		deduped = append(deduped, e)
	}
	return deduped
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
