package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries(n int) CountySeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100
	}
	return CountySeries{County: testCounty, Start: day(0), Values: values}
}

func TestMergeBack_OnlyReturnedRangeGetsRows(t *testing.T) {
	series := testSeries(20)
	dates := []time.Time{day(10), day(11), day(12)}

	rows, err := MergeBack(series, dates,
		[]float64{1.1, 1.0, 0.9},
		[]float64{0.9, 0.8, 0.7},
		[]float64{1.3, 1.2, 1.1},
	)
	require.NoError(t, err)

	want := []Estimate{
		{Date: day(10), County: testCounty, Rt: 1.1, Lower: 0.9, Upper: 1.3},
		{Date: day(11), County: testCounty, Rt: 1.0, Lower: 0.8, Upper: 1.2},
		{Date: day(12), County: testCounty, Rt: 0.9, Lower: 0.7, Upper: 1.1},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("merge-back mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeBack_DropsIncompleteRows(t *testing.T) {
	rows, err := MergeBack(testSeries(5), []time.Time{day(2), day(3)},
		[]float64{1, math.NaN()},
		[]float64{0.5, 0.5},
		[]float64{1.5, 1.5},
	)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day(2), rows[0].Date)
}

func TestMergeBack_RejectsFabricatedDates(t *testing.T) {
	tests := []struct {
		name  string
		dates []time.Time
	}{
		{"before start", []time.Time{day(-1)}},
		{"after end", []time.Time{day(5)}},
		{"duplicate", []time.Time{day(2), day(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.dates)
			ones := make([]float64, n)
			_, err := MergeBack(testSeries(5), tt.dates, ones, ones, ones)
			assert.ErrorIs(t, err, ErrEngineOutput)
		})
	}
}

func TestMergeBack_RejectsUnbracketedInterval(t *testing.T) {
	_, err := MergeBack(testSeries(5), []time.Time{day(2)}, []float64{2}, []float64{0.5}, []float64{1.5})
	assert.ErrorIs(t, err, ErrEngineOutput)
}

func TestMergeBack_LengthMismatch(t *testing.T) {
	_, err := MergeBack(testSeries(5), []time.Time{day(1)}, []float64{1}, nil, []float64{1})
	assert.ErrorIs(t, err, ErrEngineOutput)
}

func TestAssemble_SortsDedupesAndSkipsFailures(t *testing.T) {
	outcomes := []CountyOutcome{
		{County: "Yolo", Estimates: []Estimate{
			{Date: day(2), County: "Yolo", Rt: 1, Lower: 0.9, Upper: 1.1},
			{Date: day(1), County: "Yolo", Rt: 1, Lower: 0.9, Upper: 1.1},
		}},
		{County: "Marin", Err: fmt.Errorf("county Marin: %w", ErrNoData)},
		{County: "Alameda", Estimates: []Estimate{
			{Date: day(1), County: "Alameda", Rt: 1.2, Lower: 1, Upper: 1.4},
			{Date: day(1), County: "Alameda", Rt: 9, Lower: 9, Upper: 9},
			{Date: day(2), County: "Alameda", Rt: math.Inf(1), Lower: 1, Upper: 1.4},
		}},
	}

	rows := Assemble(outcomes)

	require.Len(t, rows, 3)
	assert.Equal(t, "Alameda", rows[0].County)
	assert.Equal(t, 1.2, rows[0].Rt)
	assert.Equal(t, "Yolo", rows[1].County)
	assert.Equal(t, day(1), rows[1].Date)
	assert.Equal(t, day(2), rows[2].Date)
}

func TestRunSummary_RecordAndFinish(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2023, time.July, 20, 6, 0, 0, 0, time.UTC))

	s := NewRunSummary(fake)
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, fake.Now(), s.StartedAt)

	s.Record(CountyOutcome{County: "Yolo"})
	s.Record(CountyOutcome{County: "Alameda"})
	s.Record(CountyOutcome{County: "Marin", Err: fmt.Errorf("wrap: %w", ErrNoData)})

	fake.Advance(time.Minute)
	s.Finish(fake, 42)

	assert.Equal(t, []string{"Alameda", "Yolo"}, s.Processed)
	assert.Equal(t, map[string]string{"Marin": "no_data"}, s.Skipped)
	assert.Equal(t, 42, s.Rows)
	assert.Equal(t, time.Minute, s.FinishedAt.Sub(s.StartedAt))
}

type labelled struct{}

func (labelled) Error() string  { return "labelled" }
func (labelled) Reason() string { return "custom" }

func TestSkipReason(t *testing.T) {
	assert.Empty(t, SkipReason(nil))
	assert.Equal(t, "malformed", SkipReason(fmt.Errorf("x: %w", ErrMalformedSeries)))
	assert.Equal(t, "engine_output", SkipReason(ErrEngineOutput))
	assert.Equal(t, "panic", SkipReason(fmt.Errorf("county Napa: %w", ErrEnginePanic)))
	assert.Equal(t, "custom", SkipReason(fmt.Errorf("x: %w", labelled{})))
	assert.Equal(t, "error", SkipReason(errors.New("boom")))
}
