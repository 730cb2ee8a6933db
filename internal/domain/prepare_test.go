package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCounty = "Yolo"

func day(n int) time.Time {
	return time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func val(v float64) *float64 { return &v }

func obs(d int, v *float64) Observation {
	return Observation{Date: day(d), County: testCounty, Value: v}
}

func TestPrepareSeries_AveragesDuplicateDates(t *testing.T) {
	series, err := PrepareSeries(testCounty, []Observation{
		obs(0, val(10)),
		obs(0, val(20)),
		obs(1, val(30)),
		obs(1, nil),
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, []float64{15, 30}, series.Values)
	assert.Equal(t, day(0), series.Start)
}

func TestPrepareSeries_SortsAndResamplesDaily(t *testing.T) {
	series, err := PrepareSeries(testCounty, []Observation{
		obs(4, val(50)),
		obs(0, val(10)),
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20, 30, 40, 50}, series.Values)
	assert.Equal(t, day(4), series.End())
}

func TestPrepareSeries_NeverExtrapolates(t *testing.T) {
	series, err := PrepareSeries(testCounty, []Observation{
		obs(0, nil),
		obs(1, nil),
		obs(2, val(10)),
		obs(4, val(30)),
		obs(6, nil),
	}, 1)
	require.NoError(t, err)

	require.Len(t, series.Values, 7)
	assert.True(t, math.IsNaN(series.Values[0]))
	assert.True(t, math.IsNaN(series.Values[1]))
	assert.Equal(t, []float64{10, 20, 30}, series.Values[2:5])
	assert.True(t, math.IsNaN(series.Values[5]))
	assert.True(t, math.IsNaN(series.Values[6]))
}

func TestPrepareSeries_ReplacesZerosBeforeInterpolating(t *testing.T) {
	rows := make([]Observation, 0, 40)
	for d := 0; d < 10; d++ {
		rows = append(rows, obs(d, val(0)))
	}
	for d := 10; d < 40; d++ {
		rows = append(rows, obs(d, val(200)))
	}

	series, err := PrepareSeries(testCounty, rows, 1)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, 100.0, series.Values[i], "day %d", i)
	}
	assert.Equal(t, 200.0, series.Values[10])
}

func TestPrepareSeries_ScalesAndRoundsHalfToEven(t *testing.T) {
	series, err := PrepareSeries(testCounty, []Observation{
		obs(0, val(0.625)), // 2.5 -> 2
		obs(1, val(0.875)), // 3.5 -> 4
		obs(2, val(1.3)),   // 5.2 -> 5
	}, 4)
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 4, 5}, series.Values)
}

func TestPrepareSeries_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows []Observation
		want error
	}{
		{"no rows", nil, ErrNoData},
		{"all missing", []Observation{obs(0, nil), obs(1, nil)}, ErrNoData},
		{"negative value", []Observation{obs(0, val(-1))}, ErrMalformedSeries},
		{"zero date", []Observation{{County: testCounty, Value: val(1)}}, ErrMalformedSeries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareSeries(testCounty, tt.rows, 4)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), testCounty)
		})
	}
}

func TestReplaceZeros_AllZeroUntouched(t *testing.T) {
	values := []float64{0, 0, math.NaN()}
	ReplaceZeros(values)
	assert.Equal(t, 0.0, values[0])
	assert.Equal(t, 0.0, values[1])
}

func TestInterpolate(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"no gaps", []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"single gap", []float64{1, nan, 3}, []float64{1, 2, 3}},
		{"long gap", []float64{0, nan, nan, nan, 8}, []float64{0, 2, 4, 6, 8}},
		{"two gaps", []float64{4, nan, 2, nan, nan, 5}, []float64{4, 3, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Interpolate(tt.in)
			assert.InDeltaSlice(t, tt.want, tt.in, 1e-9)
		})
	}
}
