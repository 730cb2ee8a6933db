// Command genmock writes a synthetic per-county daily table for exercising
// the estimator end to end without the upstream exports. Every enumerated
// county gets one scenario: flat, growing, decaying, a zero-valued prefix,
// a series too short to estimate, or no data at all.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/ww_CA_county.csv -days 120 -seed 7
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/csvfile"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/builder"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/reference"
)

var baseDate = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// normRatio converts case-equivalents to the PMMoV-normalized column.
const normRatio = 1e-4

type scenario struct {
	name string
	// cases returns the expected case-equivalents on day d of n.
	cases func(d, n int) float64
	// days overrides the series length when positive.
	days int
}

var scenarios = []scenario{
	{name: "flat", cases: func(int, int) float64 { return 400 }},
	{name: "growth", cases: func(d, _ int) float64 { return 100 * math.Exp(0.03*float64(d)) }},
	{name: "decay", cases: func(d, _ int) float64 { return 2000 * math.Exp(-0.03*float64(d)) }},
	{name: "wave", cases: func(d, n int) float64 {
		return 300 + 250*math.Sin(2*math.Pi*float64(d)/float64(n))
	}},
	{name: "zero-prefix", cases: func(d, _ int) float64 {
		if d < 10 {
			return 0
		}
		return 250
	}},
	{name: "short", cases: func(int, int) float64 { return 300 }, days: 8},
	{name: "empty"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the county table")
	days := flag.Int("days", 120, "days per county")
	seed := flag.Uint64("seed", 1, "noise seed")
	noise := flag.Float64("noise", 0.05, "relative multiplicative noise")
	gap := flag.Int("gap-every", 7, "leave every Nth day blank (0 = no gaps)")
	refPath := flag.String("reference", "", "reference dataset YAML (default: embedded)")
	flag.Parse()

	if *out == "" || *days < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	ref := reference.Default()
	if *refPath != "" {
		var err error
		if ref, err = reference.Load(*refPath); err != nil {
			return fmt.Errorf("load reference: %w", err)
		}
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	var rows []builder.Row //nolint:prealloc // depends on scenario lengths
	assigned := map[string]int{}
	for i, county := range ref.Counties {
		sc := scenarios[i%len(scenarios)]
		series := generate(county, sc, *days, *gap, *noise, rng)
		rows = append(rows, series...)
		assigned[sc.name]++
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].County != rows[j].County {
			return rows[i].County < rows[j].County
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	if err := csvfile.WriteFileAtomic(*out, func(w io.Writer) error {
		return builder.WriteSeries(w, rows)
	}); err != nil {
		return fmt.Errorf("writing county table: %w", err)
	}
	log.Printf("wrote county table: %s (%d rows, %d counties)", *out, len(rows), len(ref.Counties))

	printStats(assigned)
	return nil
}

func generate(county string, sc scenario, days, gapEvery int, noise float64, rng *rand.Rand) []builder.Row {
	if sc.cases == nil {
		return nil
	}
	n := days
	if sc.days > 0 {
		n = sc.days
	}

	rows := make([]builder.Row, 0, n)
	for d := range n {
		row := builder.Row{
			Date:      baseDate.AddDate(0, 0, d),
			County:    county,
			NormPMMoV: math.NaN(),
			CasesN:    math.NaN(),
		}
		// Interior gaps only: the first and last days always carry a value.
		if gapEvery <= 0 || d == 0 || d == n-1 || d%gapEvery != 0 {
			v := sc.cases(d, n) * (1 + noise*(2*rng.Float64()-1))
			v = math.Max(v, 0)
			row.CasesN = v
			row.NormPMMoV = v * normRatio
		}
		rows = append(rows, row)
	}
	return rows
}

func printStats(assigned map[string]int) {
	fmt.Println("\n=== Scenario Stats ===")
	for _, sc := range scenarios {
		fmt.Printf("  %-12s %d counties\n", sc.name, assigned[sc.name])
	}
}
