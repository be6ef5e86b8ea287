// Command genmock writes a synthetic observation CSV whose leaf counts are
// generated from a known base temperature, then calibrates it and prints the
// recovered values for updating test assertions.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/synthetic_tb10.csv \
//	  -tb 10 -groups 3 -days 60 -seed 1 \
//	  -json-out data/mock/synthetic_tb10_report.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tb-calibration/internal/domain"
	"github.com/couchcryptid/tb-calibration/internal/export"
	"github.com/couchcryptid/tb-calibration/internal/synth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	def := synth.DefaultParams()
	out := flag.String("out", "", "output path for the observation CSV")
	jsonOut := flag.String("json-out", "", "optional output path for the calibration report JSON")
	groups := flag.Int("groups", def.Groups, "number of sowing groups")
	days := flag.Int("days", def.Days, "days per group")
	tb := flag.Float64("tb", def.Tb, "base temperature the leaf counts are generated from")
	slope := flag.Float64("slope", def.Slope, "leaves per degree-day")
	intercept := flag.Float64("intercept", def.Intercept, "leaf count at zero thermal time")
	noise := flag.Float64("noise", def.Noise, "standard deviation of the leaf count noise")
	seed := flag.Uint64("seed", def.Seed, "random seed")
	start := flag.String("start", def.Start.Format(time.DateOnly), "first sowing date (YYYY-MM-DD)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	p := def
	p.Groups, p.Days, p.Tb, p.Slope, p.Intercept, p.Noise, p.Seed = *groups, *days, *tb, *slope, *intercept, *noise, *seed
	p.Start = startDate

	data, err := synth.Generate(p)
	if err != nil {
		return err
	}
	if err := writeFile(*out, func(f *os.File) error { return export.WriteObservationsCSV(f, data) }); err != nil {
		return fmt.Errorf("writing observations: %w", err)
	}
	log.Printf("wrote %d groups x %d days: %s", p.Groups, p.Days, *out)

	// Fixed clock for reproducible CompletedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(startDate))
	defer domain.SetClock(nil)

	store, _, err := domain.NewStore(data)
	if err != nil {
		return err
	}
	res, err := domain.Optimize(context.Background(), store, domain.DefaultScanConfig())
	if err != nil {
		return fmt.Errorf("calibrating generated data: %w", err)
	}

	if *jsonOut != "" {
		report := struct {
			Params synth.Params              `json:"params"`
			Result domain.OptimizationResult `json:"result"`
		}{Params: p, Result: res}
		if err := writeFile(*jsonOut, func(f *os.File) error { return export.WriteJSON(f, report) }); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		log.Printf("wrote report: %s", *jsonOut)
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("True Tb: %g\n", p.Tb)
	fmt.Printf("Recovered Tb: %g\n", res.BestTb)
	fmt.Printf("R²: %.6f, slope: %.6f, intercept: %.6f\n",
		res.BestRegression.R2, res.BestRegression.Slope, res.BestRegression.Intercept)
	fmt.Printf("Fit: %s\n", domain.ClassifyFit(res.BestRegression.R2))
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	return f.Close()
}
