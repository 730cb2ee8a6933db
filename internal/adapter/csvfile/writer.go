package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

// resultRow is the published column layout.
type resultRow struct {
	Date   Day    `csv:"Date"`
	County string `csv:"County"`
	Rt     Number `csv:"Rt"`
	Lower  Number `csv:"Rt_LCI"`
	Upper  Number `csv:"Rt_UCI"`
}

// Sink writes the combined result table to a CSV file, replacing any
// previous file atomically.
type Sink struct {
	path string
}

// NewSink returns a Sink writing to path.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Name identifies the sink in logs.
func (s *Sink) Name() string { return "csv" }

// WriteResults implements pipeline.ResultSink.
func (s *Sink) WriteResults(_ context.Context, _ domain.RunSummary, rows domain.CombinedResult) error {
	return WriteFileAtomic(s.path, func(w io.Writer) error {
		return WriteResults(w, rows)
	})
}

// WriteResults encodes rows with the Date,County,Rt,Rt_LCI,Rt_UCI header.
// The header is written even when rows is empty.
func WriteResults(w io.Writer, rows domain.CombinedResult) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(resultRow{}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, e := range rows {
		r := resultRow{
			Date:   Day(e.Date),
			County: e.County,
			Rt:     Number(e.Rt),
			Lower:  Number(e.Lower),
			Upper:  Number(e.Upper),
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s %s: %w", e.County, e.Date.Format("2006-01-02"), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadResults decodes a result table written by WriteResults.
func ReadResults(r io.Reader) (domain.CombinedResult, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err == io.EOF {
		return nil, fmt.Errorf("empty result file: %w", domain.ErrPrecondition)
	}
	if err != nil {
		return nil, fmt.Errorf("read result header: %w", err)
	}
	dec.DisallowMissingColumns = true

	var out domain.CombinedResult
	for {
		var row resultRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode result row: %w", err)
		}
		out = append(out, domain.Estimate{
			Date:   row.Date.Time(),
			County: row.County,
			Rt:     float64(row.Rt),
			Lower:  float64(row.Lower),
			Upper:  float64(row.Upper),
		})
	}
	return out, nil
}

// WriteFileAtomic writes through a temporary file in the target directory
// and renames it over path once write succeeds.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
