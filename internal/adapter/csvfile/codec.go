package csvfile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order. Upstream feeds mix plain dates, pandas
// timestamps and US-style dates.
var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"1/2/2006",
}

// ParseDate parses a cell into a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseValue parses a numeric cell. Empty and NaN cells are missing.
func ParseValue(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}

func isMissing(s string) bool {
	return s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na")
}

// Day is a calendar date cell written as YYYY-MM-DD.
type Day time.Time

// MarshalCSV implements csvutil.Marshaler.
func (d Day) MarshalCSV() ([]byte, error) {
	return []byte(time.Time(d).Format(time.DateOnly)), nil
}

// UnmarshalCSV implements csvutil.Unmarshaler.
func (d *Day) UnmarshalCSV(b []byte) error {
	t, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = Day(t)
	return nil
}

// Time returns the day as a time.Time.
func (d Day) Time() time.Time { return time.Time(d) }

// Number is a float cell. NaN is written as an empty cell, and empty or NaN
// cells read back as NaN.
type Number float64

// MarshalCSV implements csvutil.Marshaler.
func (n Number) MarshalCSV() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) {
		return nil, nil
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

// UnmarshalCSV implements csvutil.Unmarshaler.
func (n *Number) UnmarshalCSV(b []byte) error {
	v, err := ParseValue(string(b))
	if err != nil {
		return err
	}
	if v == nil {
		*n = Number(math.NaN())
		return nil
	}
	*n = Number(*v)
	return nil
}
