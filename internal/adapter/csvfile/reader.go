package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

// Source reads the per-county daily table from a CSV file.
type Source struct {
	path   string
	signal string
}

// NewSource returns a Source reading the signal column of the file at path.
func NewSource(path, signal string) *Source {
	return &Source{path: path, signal: signal}
}

// LoadObservations reads every row of the input table.
func (s *Source) LoadObservations(ctx context.Context) ([]domain.Observation, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w: %w", s.path, domain.ErrPrecondition, err)
	}
	defer f.Close()

	rows, err := ReadObservations(ctx, f, s.signal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return rows, nil
}

// ReadObservations parses a table with a date column, a county column and
// the named signal column. Column names are matched case-insensitively and
// extra columns are ignored. Structural problems wrap domain.ErrPrecondition.
func ReadObservations(ctx context.Context, r io.Reader, signal string) ([]domain.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty input: %w", domain.ErrPrecondition)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w: %w", domain.ErrPrecondition, err)
	}

	dateCol, countyCol, valueCol := -1, -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case strings.EqualFold(name, "date"):
			dateCol = i
		case strings.EqualFold(name, "county"):
			countyCol = i
		case name == signal:
			valueCol = i
		}
	}
	var missing []string
	if dateCol < 0 {
		missing = append(missing, "Date")
	}
	if countyCol < 0 {
		missing = append(missing, "County")
	}
	if valueCol < 0 {
		missing = append(missing, signal)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns %s: %w", strings.Join(missing, ", "), domain.ErrPrecondition)
	}

	var out []domain.Observation
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %w", line, domain.ErrPrecondition, err)
		}
		if len(rec) <= max(dateCol, countyCol, valueCol) {
			return nil, fmt.Errorf("line %d: %d fields, want at least %d: %w",
				line, len(rec), max(dateCol, countyCol, valueCol)+1, domain.ErrPrecondition)
		}

		date, err := ParseDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %w", line, domain.ErrPrecondition, err)
		}
		value, err := ParseValue(rec[valueCol])
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w: %w", line, signal, domain.ErrPrecondition, err)
		}
		out = append(out, domain.Observation{
			Date:   date,
			County: strings.TrimSpace(rec[countyCol]),
			Value:  value,
		})
	}
	return out, nil
}
