package csvfile

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReadObservations(t *testing.T) {
	in := strings.Join([]string{
		"date,SC2_N_norm_PMMoV,Cases_N,county",
		"2022-03-01,0.1,120.5,Yolo",
		"2022-03-02T00:00:00Z,0.2,,Yolo",
		"2022-03-03,0.3,NaN,Marin",
	}, "\n")

	rows, err := ReadObservations(context.Background(), strings.NewReader(in), "Cases_N")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, date(2022, time.March, 1), rows[0].Date)
	assert.Equal(t, "Yolo", rows[0].County)
	require.NotNil(t, rows[0].Value)
	assert.Equal(t, 120.5, *rows[0].Value)

	assert.Equal(t, date(2022, time.March, 2), rows[1].Date)
	assert.Nil(t, rows[1].Value)
	assert.Nil(t, rows[2].Value)
	assert.Equal(t, "Marin", rows[2].County)
}

func TestReadObservations_Preconditions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty input"},
		{"missing signal", "Date,County\n2022-01-01,Yolo", "Cases_N"},
		{"missing county", "Date,Cases_N\n2022-01-01,1", "County"},
		{"bad date", "Date,County,Cases_N\nyesterday,Yolo,1", "line 2"},
		{"bad value", "Date,County,Cases_N\n2022-01-01,Yolo,lots", "line 2 column Cases_N"},
		{"short row", "Date,County,Cases_N\n2022-01-01,Yolo", "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadObservations(context.Background(), strings.NewReader(tt.in), "Cases_N")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPrecondition)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSource_MissingFileIsPrecondition(t *testing.T) {
	_, err := NewSource(filepath.Join(t.TempDir(), "nope.csv"), "Cases_N").LoadObservations(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteResults_Format(t *testing.T) {
	rows := domain.CombinedResult{
		{Date: date(2022, time.March, 11), County: "San Luis Obispo", Rt: 1.0004, Lower: 0.9, Upper: 1.125},
		{Date: date(2022, time.March, 12), County: "San Luis Obispo", Rt: 1, Lower: 0.5, Upper: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, rows))

	want := "Date,County,Rt,Rt_LCI,Rt_UCI\n" +
		"2022-03-11,San Luis Obispo,1.0004,0.9,1.125\n" +
		"2022-03-12,San Luis Obispo,1,0.5,2\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteResults_HeaderOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, nil))
	assert.Equal(t, "Date,County,Rt,Rt_LCI,Rt_UCI\n", buf.String())
}

func TestSink_WritesAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rt.csv")
	rows := domain.CombinedResult{
		{Date: date(2022, time.May, 1), County: "Yolo", Rt: 1.1, Lower: 0.95, Upper: 1.3},
	}

	sink := NewSink(path)
	require.NoError(t, sink.WriteResults(context.Background(), domain.RunSummary{}, rows))
	require.NoError(t, sink.WriteResults(context.Background(), domain.RunSummary{}, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := ReadResults(f)
	require.NoError(t, err)
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadResults_MissingColumn(t *testing.T) {
	_, err := ReadResults(strings.NewReader("Date,County,Rt\n2022-01-01,Yolo,1\n"))
	require.Error(t, err)
}

func TestNumber_Missing(t *testing.T) {
	b, err := Number(math.NaN()).MarshalCSV()
	require.NoError(t, err)
	assert.Empty(t, b)

	var n Number
	require.NoError(t, n.UnmarshalCSV([]byte("nan")))
	assert.True(t, math.IsNaN(float64(n)))
}

func TestParseDate_Layouts(t *testing.T) {
	for _, in := range []string{"2021-06-03", "2021-06-03T12:00:00Z", "2021-06-03 08:00:00", "6/3/2021"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, date(2021, time.June, 3), got, in)
	}
}
