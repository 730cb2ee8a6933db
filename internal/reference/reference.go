// Package reference loads the versioned reference dataset: the county
// enumeration, the city and FIPS mappings, and the rules for merging the
// Eurofins feed into the SCAN feed.
package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDataset []byte

// Dataset is one version of the reference data.
type Dataset struct {
	Version        string            `yaml:"version"`
	State          string            `yaml:"state"`
	Counties       []string          `yaml:"counties"`
	Cities         map[string]string `yaml:"cities"`
	FIPS           map[string]string `yaml:"fips"`
	ExcludedCities []string          `yaml:"excluded_cities"`
	SiteOverrides  []SiteOverride    `yaml:"site_overrides"`
	Eurofins       EurofinsRules     `yaml:"eurofins"`

	lateCutoff time.Time
}

// SiteOverride relabels rows of a named site to their own city and FIPS
// code, for sites the upstream feed files under a neighbouring city.
type SiteOverride struct {
	SiteName string `yaml:"site_name"`
	City     string `yaml:"city"`
	FIPS     string `yaml:"fips"`
}

// EurofinsRules decide which Eurofins rows are merged. Cities in
// FullHistoryCities are kept entirely; LateCities only after LateCutoff,
// once SCAN stopped covering them.
type EurofinsRules struct {
	FullHistoryCities []string `yaml:"full_history_cities"`
	LateCities        []string `yaml:"late_cities"`
	LateCutoff        string   `yaml:"late_cutoff"`
}

// Load reads the dataset at path, or the embedded default when path is empty.
func Load(path string) (*Dataset, error) {
	if path == "" {
		return Parse(defaultDataset)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference dataset: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Default returns the embedded dataset.
func Default() *Dataset {
	ds, err := Parse(defaultDataset)
	if err != nil {
		panic(fmt.Sprintf("embedded reference dataset: %v", err))
	}
	return ds
}

// Parse decodes and validates a YAML dataset.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode reference dataset: %w", err)
	}
	if err := ds.validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (d *Dataset) validate() error {
	if d.Version == "" {
		return errors.New("reference dataset: version is required")
	}
	if len(d.Counties) == 0 {
		return errors.New("reference dataset: county enumeration is empty")
	}
	seen := make(map[string]bool, len(d.Counties))
	for _, c := range d.Counties {
		if c == "" {
			return errors.New("reference dataset: empty county name")
		}
		if seen[c] {
			return fmt.Errorf("reference dataset: county %q listed twice", c)
		}
		seen[c] = true
	}
	for city, county := range d.Cities {
		if county == "" {
			return fmt.Errorf("reference dataset: city %q has no county", city)
		}
	}
	for _, o := range d.SiteOverrides {
		if _, ok := d.Cities[o.City]; !ok {
			return fmt.Errorf("reference dataset: site override %q targets unmapped city %q", o.SiteName, o.City)
		}
	}
	for _, city := range append(slices.Clone(d.Eurofins.FullHistoryCities), d.Eurofins.LateCities...) {
		if _, ok := d.Cities[city]; !ok {
			return fmt.Errorf("reference dataset: eurofins city %q is not mapped to a county", city)
		}
	}
	if d.Eurofins.LateCutoff != "" {
		t, err := time.Parse(time.DateOnly, d.Eurofins.LateCutoff)
		if err != nil {
			return fmt.Errorf("reference dataset: eurofins late_cutoff: %w", err)
		}
		d.lateCutoff = t
	}
	return nil
}

// CountyForCity returns the county a city's plant belongs to.
func (d *Dataset) CountyForCity(city string) (string, bool) {
	c, ok := d.Cities[city]
	return c, ok
}

// CountyForFIPS returns the county for a FIPS code as reported upstream.
func (d *Dataset) CountyForFIPS(code string) (string, bool) {
	c, ok := d.FIPS[code]
	return c, ok
}

// HasCounty reports whether county is part of the enumeration.
func (d *Dataset) HasCounty(county string) bool {
	return slices.Contains(d.Counties, county)
}

// Excluded reports whether rows from city are dropped before merging.
func (d *Dataset) Excluded(city string) bool {
	return slices.Contains(d.ExcludedCities, city)
}

// SiteOverride returns the override for a site name, if any.
func (d *Dataset) SiteOverride(site string) (SiteOverride, bool) {
	for _, o := range d.SiteOverrides {
		if o.SiteName == site {
			return o, true
		}
	}
	return SiteOverride{}, false
}

// KeepEurofins reports whether a Eurofins row from city sampled on date is
// merged.
func (d *Dataset) KeepEurofins(city string, date time.Time) bool {
	if slices.Contains(d.Eurofins.FullHistoryCities, city) {
		return true
	}
	if slices.Contains(d.Eurofins.LateCities, city) {
		return d.lateCutoff.IsZero() || date.After(d.lateCutoff)
	}
	return false
}
