package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PrepareSeries builds the daily, gap-interpolated, scaled series for one
// county from its raw rows. Rows may arrive in any order and may share dates.
func PrepareSeries(county string, rows []Observation, scale float64) (CountySeries, error) {
	if len(rows) == 0 {
		return CountySeries{}, fmt.Errorf("county %s: %w", county, ErrNoData)
	}

	type acc struct {
		sum float64
		n   int
	}
	byDay := make(map[time.Time]*acc, len(rows))
	for _, r := range rows {
		if r.Date.IsZero() {
			return CountySeries{}, fmt.Errorf("county %s: zero date: %w", county, ErrMalformedSeries)
		}
		d := Day(r.Date)
		a, ok := byDay[d]
		if !ok {
			a = &acc{}
			byDay[d] = a
		}
		if r.Value == nil || math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
			continue
		}
		if *r.Value < 0 {
			return CountySeries{}, fmt.Errorf("county %s: negative value %g on %s: %w",
				county, *r.Value, d.Format(time.DateOnly), ErrMalformedSeries)
		}
		a.sum += *r.Value
		a.n++
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	start := days[0]
	values := make([]float64, daysBetween(start, days[len(days)-1])+1)
	for i := range values {
		values[i] = math.NaN()
	}
	observed := 0
	for _, d := range days {
		if a := byDay[d]; a.n > 0 {
			values[daysBetween(start, d)] = a.sum / float64(a.n)
			observed++
		}
	}
	if observed == 0 {
		return CountySeries{}, fmt.Errorf("county %s: all values missing: %w", county, ErrNoData)
	}

	ReplaceZeros(values)
	Interpolate(values)
	for i, v := range values {
		if !math.IsNaN(v) {
			values[i] = math.RoundToEven(v * scale)
		}
	}

	return CountySeries{County: county, Start: start, Values: values}, nil
}

// ReplaceZeros replaces exact zeros with half the smallest positive value in
// place. A series with no positive value is left untouched.
func ReplaceZeros(values []float64) {
	minPositive := math.Inf(1)
	for _, v := range values {
		if v > 0 && v < minPositive {
			minPositive = v
		}
	}
	if math.IsInf(minPositive, 1) {
		return
	}
	for i, v := range values {
		if v == 0 {
			values[i] = minPositive / 2
		}
	}
}

// Interpolate fills NaN runs that sit between two known values by linear
// interpolation on the index. NaN runs at either end are left as they are.
func Interpolate(values []float64) {
	prev := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - values[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				values[j] = values[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
}
