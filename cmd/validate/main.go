// Command validate checks a published Rt table: the header and values decode,
// every interval brackets its median, rows are sorted with no duplicate
// (County, Date) pair, and every county is enumerated. Given the input table
// it also checks that each estimate sits inside the county's observed span
// after the lead-in.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -output output/data_Rt_ww_CA.csv \
//	  -input output/data_ww_CA_county.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/csvfile"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/reference"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/validate"
)

// defaultSignal matches the estimator's SIGNAL_COLUMN default.
const defaultSignal = "Cases_N"

func main() {
	output := flag.String("output", "", "path to the Rt table to check")
	input := flag.String("input", "", "optional path to the county series the table was estimated from")
	signal := flag.String("signal", defaultSignal, "signal column the table was estimated from (SIGNAL_COLUMN)")
	refPath := flag.String("reference", "", "reference dataset YAML (default: embedded)")
	leadIn := flag.Int("lead-in", renewal.DefaultConfig().LeadIn(), "days at the start of each county span with no estimate")
	flag.Parse()

	if *output == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*output, *input, *signal, *refPath, *leadIn); code != 0 {
		os.Exit(code)
	}
}

func run(outputPath, inputPath, signal, refPath string, leadIn int) int {
	fmt.Println("=== Rt Table Validation ===")
	fmt.Println()

	ref := reference.Default()
	if refPath != "" {
		var err error
		if ref, err = reference.Load(refPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load reference: %v\n", err)
			return 1
		}
	}

	rows, err := loadResults(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load Rt table: %v\n", err)
		return 1
	}

	phases := []*validate.Phase{
		validate.Intervals(rows),
		validate.Ordering(rows),
		validate.Enumeration(rows, ref),
	}

	var observations []domain.Observation
	if inputPath != "" {
		observations, err = csvfile.NewSource(inputPath, signal).LoadObservations(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load input: %v\n", err)
			return 1
		}
		phases = append(phases, validate.Spans(rows, observations, leadIn))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.Passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", p.Count())
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.Name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d estimates, %d counties", len(rows), countCounties(rows))
	if inputPath != "" {
		fmt.Printf(", %d input observations", len(observations))
	}
	fmt.Println()

	for _, p := range phases {
		if p.Passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.Name)
		for _, e := range p.Errors {
			fmt.Printf("  %s\n", e)
		}
		if extra := p.Count() - len(p.Errors); extra > 0 {
			fmt.Printf("  ... and %d more\n", extra)
		}
	}

	fmt.Println()
	if allPassed {
		fmt.Println("All validations passed.")
		return 0
	}
	fmt.Println("Validation FAILED.")
	return 1
}

func loadResults(path string) (domain.CombinedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csvfile.ReadResults(f)
}

func countCounties(rows domain.CombinedResult) int {
	seen := map[string]struct{}{}
	for _, e := range rows {
		seen[e.County] = struct{}{}
	}
	return len(seen)
}
