package builder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/csvfile"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/reference"
)

// scanRecord is one row of the SCAN export. Numeric cells are kept as text
// so empty cells stay distinguishable from zero.
type scanRecord struct {
	Date       string `csv:"Collection_Date"`
	State      string `csv:"State"`
	City       string `csv:"City"`
	SiteName   string `csv:"Site_Name"`
	Population string `csv:"Population_Served"`
	CountyFIPS string `csv:"County_FIPS"`
	NormPMMoV  string `csv:"SC2_N_norm_PMMoV"`
	NGene      string `csv:"SC2_N_gc_g_dry_weight"`
}

// eurofinsRecord is one row of the Eurofins Central Valley export.
type eurofinsRecord struct {
	Date      string `csv:"SampleDate"`
	City      string `csv:"City"`
	NormPMMoV string `csv:"N_norm_PMMoV"`
	NGene     string `csv:"N Gene gc/g dry weight"`
}

// sample is a harmonized measurement from either feed.
type sample struct {
	date       time.Time
	city       string
	fips       string
	population *float64
	normPMMoV  float64 // NaN when missing
	nGene      float64 // NaN when missing
}

func readScan(r io.Reader, ref *reference.Dataset) ([]sample, error) {
	var out []sample
	err := decodeAll(r, "scan", func(line int, rec *scanRecord) error {
		if ref.State != "" && rec.State != ref.State {
			return nil
		}
		if ref.Excluded(rec.City) {
			return nil
		}
		if o, ok := ref.SiteOverride(rec.SiteName); ok {
			rec.City, rec.CountyFIPS = o.City, o.FIPS
		}

		s, err := newSample(rec.Date, rec.City, rec.NormPMMoV, rec.NGene)
		if err != nil {
			return fmt.Errorf("scan line %d: %w", line, err)
		}
		s.fips = rec.CountyFIPS
		if s.population, err = csvfile.ParseValue(rec.Population); err != nil {
			return fmt.Errorf("scan line %d Population_Served: %w", line, err)
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func readEurofins(r io.Reader, ref *reference.Dataset) ([]sample, error) {
	var out []sample
	err := decodeAll(r, "eurofins", func(line int, rec *eurofinsRecord) error {
		s, err := newSample(rec.Date, rec.City, rec.NormPMMoV, rec.NGene)
		if err != nil {
			return fmt.Errorf("eurofins line %d: %w", line, err)
		}
		if ref.KeepEurofins(s.city, s.date) {
			out = append(out, s)
		}
		return nil
	})
	return out, err
}

func newSample(date, city, norm, nGene string) (sample, error) {
	d, err := csvfile.ParseDate(date)
	if err != nil {
		return sample{}, err
	}
	s := sample{date: d, city: city}
	if s.normPMMoV, err = parseCell(norm); err != nil {
		return sample{}, err
	}
	if s.nGene, err = parseCell(nGene); err != nil {
		return sample{}, err
	}
	return s, nil
}

func parseCell(cell string) (float64, error) {
	v, err := csvfile.ParseValue(cell)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return math.NaN(), nil
	}
	return *v, nil
}

// decodeAll decodes every record of r into T and hands it to fn with its
// 1-based line number. Missing columns and undecodable rows wrap
// domain.ErrPrecondition.
func decodeAll[T any](r io.Reader, name string, fn func(line int, rec *T) error) error {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: empty file: %w", name, domain.ErrPrecondition)
	}
	if err != nil {
		return fmt.Errorf("%s: read header: %w: %w", name, domain.ErrPrecondition, err)
	}
	dec.DisallowMissingColumns = true

	for line := 2; ; line++ {
		var rec T
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("%s line %d: %w: %w", name, line, domain.ErrPrecondition, err)
		}
		if err := fn(line, &rec); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPrecondition, err)
		}
	}
}
