// Package builder turns the raw SCAN and Eurofins wastewater exports into
// the per-county daily table the Rt pipeline reads. Each county is
// represented by its largest treatment plant.
package builder

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/jszwec/csvutil"
	"gonum.org/v1/gonum/stat"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/csvfile"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/reference"
)

// Row is one day of one county. Missing values are NaN.
type Row struct {
	Date      time.Time
	County    string
	NormPMMoV float64
	CasesN    float64
}

// Result is the built table plus the plant chosen for each county.
type Result struct {
	Rows    []Row
	Sites   map[string]string // county -> city
	Skipped []string          // enumerated counties without a usable plant
}

// Builder merges the feeds according to a reference dataset.
type Builder struct {
	ref    *reference.Dataset
	logger *slog.Logger
}

// New creates a Builder.
func New(ref *reference.Dataset, logger *slog.Logger) *Builder {
	return &Builder{ref: ref, logger: logger}
}

// BuildFiles reads the SCAN export at scanPath and, when eurofinsPath is
// set, the Eurofins export, then writes the county table to outPath.
func (b *Builder) BuildFiles(ctx context.Context, scanPath, eurofinsPath, outPath string) (Result, error) {
	scan, err := os.Open(scanPath)
	if err != nil {
		return Result{}, fmt.Errorf("open scan export: %w: %w", domain.ErrPrecondition, err)
	}
	defer scan.Close()

	var euro io.Reader
	if eurofinsPath != "" {
		f, err := os.Open(eurofinsPath)
		if err != nil {
			return Result{}, fmt.Errorf("open eurofins export: %w: %w", domain.ErrPrecondition, err)
		}
		defer f.Close()
		euro = f
	}

	res, err := b.Build(ctx, scan, euro)
	if err != nil {
		return Result{}, err
	}
	if err := csvfile.WriteFileAtomic(outPath, func(w io.Writer) error {
		return WriteSeries(w, res.Rows)
	}); err != nil {
		return Result{}, fmt.Errorf("write county table: %w", err)
	}
	b.logger.Info("county table written", "path", outPath, "rows", len(res.Rows), "counties", len(res.Sites))
	return res, nil
}

// Build merges the feeds. euro may be nil.
func (b *Builder) Build(ctx context.Context, scan, euro io.Reader) (Result, error) {
	samples, err := readScan(scan, b.ref)
	if err != nil {
		return Result{}, err
	}
	if euro != nil {
		extra, err := readEurofins(euro, b.ref)
		if err != nil {
			return Result{}, err
		}
		samples = append(samples, extra...)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].city != samples[j].city {
			return samples[i].city < samples[j].city
		}
		return samples[i].date.Before(samples[j].date)
	})

	byCounty := make(map[string][]sample)
	for _, s := range samples {
		county, err := b.countyOf(s)
		if err != nil {
			return Result{}, err
		}
		byCounty[county] = append(byCounty[county], s)
	}

	res := Result{Sites: make(map[string]string)}
	for _, county := range b.ref.Counties {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		city, ok := largestPlant(byCounty[county])
		if !ok {
			b.logger.Warn("county has no plant with population served", "county", county, "samples", len(byCounty[county]))
			res.Skipped = append(res.Skipped, county)
			continue
		}
		res.Sites[county] = city

		var site []sample
		for _, s := range byCounty[county] {
			if s.city == city {
				site = append(site, s)
			}
		}
		res.Rows = append(res.Rows, dailyMeans(county, site)...)
		b.logger.Debug("county plant selected", "county", county, "city", city, "samples", len(site))
	}

	sort.SliceStable(res.Rows, func(i, j int) bool {
		if res.Rows[i].County != res.Rows[j].County {
			return res.Rows[i].County < res.Rows[j].County
		}
		return res.Rows[i].Date.Before(res.Rows[j].Date)
	})
	return res, nil
}

func (b *Builder) countyOf(s sample) (string, error) {
	if county, ok := b.ref.CountyForCity(s.city); ok {
		return county, nil
	}
	if county, ok := b.ref.CountyForFIPS(s.fips); ok {
		return county, nil
	}
	return "", fmt.Errorf("city %q (fips %q) is not in reference dataset %s: %w",
		s.city, s.fips, b.ref.Version, domain.ErrPrecondition)
}

// largestPlant returns the city with the largest population served. Ties
// go to the first city in (city, date) order.
func largestPlant(samples []sample) (string, bool) {
	best, city := math.Inf(-1), ""
	for _, s := range samples {
		if s.population != nil && *s.population > best {
			best, city = *s.population, s.city
		}
	}
	return city, city != ""
}

// dailyMeans applies zero-value correction per column and averages the
// samples of each calendar day over the plant's full span. Days without a
// sample are emitted with missing values.
func dailyMeans(county string, site []sample) []Row {
	if len(site) == 0 {
		return nil
	}
	norm := make([]float64, len(site))
	nGene := make([]float64, len(site))
	first, last := site[0].date, site[0].date
	for i, s := range site {
		norm[i], nGene[i] = s.normPMMoV, s.nGene
		if s.date.Before(first) {
			first = s.date
		}
		if s.date.After(last) {
			last = s.date
		}
	}
	domain.ReplaceZeros(norm)
	domain.ReplaceZeros(nGene)

	days := int(last.Sub(first).Hours()/24) + 1
	normByDay := make([][]float64, days)
	nGeneByDay := make([][]float64, days)
	for i, s := range site {
		d := int(s.date.Sub(first).Hours() / 24)
		if !math.IsNaN(norm[i]) {
			normByDay[d] = append(normByDay[d], norm[i])
		}
		if !math.IsNaN(nGene[i]) {
			nGeneByDay[d] = append(nGeneByDay[d], nGene[i])
		}
	}

	rows := make([]Row, days)
	for d := range rows {
		rows[d] = Row{
			Date:      first.AddDate(0, 0, d),
			County:    county,
			NormPMMoV: mean(normByDay[d]),
			CasesN:    mean(nGeneByDay[d]),
		}
	}
	return rows
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// seriesRow is the column layout of the county table.
type seriesRow struct {
	Date      csvfile.Day    `csv:"Date"`
	County    string         `csv:"County"`
	NormPMMoV csvfile.Number `csv:"SC2_N_norm_PMMoV"`
	CasesN    csvfile.Number `csv:"Cases_N"`
}

// WriteSeries encodes the county table. Missing values are empty cells.
func WriteSeries(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(seriesRow{}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, r := range rows {
		if err := enc.Encode(seriesRow{
			Date:      csvfile.Day(r.Date),
			County:    r.County,
			NormPMMoV: csvfile.Number(r.NormPMMoV),
			CasesN:    csvfile.Number(r.CasesN),
		}); err != nil {
			return fmt.Errorf("encode %s %s: %w", r.County, r.Date.Format(time.DateOnly), err)
		}
	}
	cw.Flush()
	return cw.Error()
}
