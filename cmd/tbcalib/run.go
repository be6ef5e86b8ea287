package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/tb-calibration/internal/calibration"
	"github.com/couchcryptid/tb-calibration/internal/domain"
	"github.com/couchcryptid/tb-calibration/internal/export"
	"github.com/couchcryptid/tb-calibration/internal/ingest"
)

type outputs struct {
	scan, series, json string
}

func newRunCmd(opts *options) *cobra.Command {
	out := &outputs{}
	cmd := &cobra.Command{
		Use:   "run <observations.csv>",
		Short: "Scan the Tb grid and report the best base temperature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibration(cmd, opts, out, args[0])
		},
	}
	cmd.Flags().StringVar(&out.scan, "scan-out", "", "write the Tb scan table as CSV")
	cmd.Flags().StringVar(&out.series, "series-out", "", "write the daily thermal series at the best Tb as CSV")
	cmd.Flags().StringVar(&out.json, "json-out", "", "write the full report as JSON")
	return cmd
}

func runCalibration(cmd *cobra.Command, opts *options, out *outputs, path string) error {
	cfg, inOpts, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	ds, err := readDataset(path, inOpts)
	if err != nil {
		return err
	}

	svc := calibration.NewService(cfg, opts.logger(cmd.ErrOrStderr()), nil)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, calErr := svc.CalibrateObservations(ctx, "", cfg, ds.Groups)

	w := cmd.OutOrStdout()
	printValidation(w, report.Validation)
	if out.json != "" {
		if err := writeTo(out.json, func(f io.Writer) error { return export.WriteJSON(f, report) }); err != nil {
			return err
		}
	}
	if calErr != nil {
		return fmt.Errorf("calibration failed (%s): %w", report.Error.Kind, calErr)
	}

	res := report.Result
	printSummary(w, report)

	if out.scan != "" {
		if err := writeTo(out.scan, func(f io.Writer) error { return export.WriteScanCSV(f, res.ScanCurve) }); err != nil {
			return err
		}
	}
	if out.series != "" {
		// Same input, same store: this reproduces the calibrated groups.
		store, _, err := domain.NewStore(ds.Groups)
		if err != nil {
			return err
		}
		if err := writeTo(out.series, func(f io.Writer) error { return export.WriteSeriesCSV(f, store, res.Series) }); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(w io.Writer, report calibration.Report) {
	res := report.Result
	fit := res.BestRegression
	fmt.Fprintf(w, "Calibrated %d groups, %d observations, %d Tb candidates (%s, %s)\n",
		res.Groups, res.Points, len(res.ScanCurve), res.Config.Pooling, res.Config.Criterion)
	fmt.Fprintf(w, "Best Tb: %.2f °C\n", res.BestTb)
	fmt.Fprintf(w, "NF = %.6f × STa + %.6f   R² = %.6f   MSE = %.6f   n = %d\n",
		fit.Slope, fit.Intercept, fit.R2, fit.MSE, fit.N)

	if len(res.GroupFits) > 0 {
		names := make([]string, 0, len(res.GroupFits))
		for name := range res.GroupFits {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g := res.GroupFits[name]
			fmt.Fprintf(w, "  %-12s slope %.6f  intercept %.6f  R² %.6f  n %d\n", name, g.Slope, g.Intercept, g.R2, g.N)
		}
	}
	if report.Interpretation != nil {
		fmt.Fprintln(w, report.Interpretation.Summary)
	}
}

func printValidation(w io.Writer, v domain.ValidationReport) {
	for _, d := range v.Dropped {
		fmt.Fprintf(w, "dropped: %s\n", d)
	}
	for _, g := range v.FailedGroups {
		fmt.Fprintf(w, "excluded: %s\n", g)
	}
	for _, warn := range v.Warnings {
		fmt.Fprintf(w, "warning: group %q record %d: %s\n", warn.Group, warn.Index, warn.Message)
	}
}

func writeTo(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <observations.csv>",
		Short: "Check an observation table without calibrating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, inOpts, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			ds, err := readDataset(args[0], inOpts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "columns: %s\n", describeMapping(ds))
			store, report, err := domain.NewStore(ds.Groups)
			printValidation(w, report)
			if err != nil {
				return fmt.Errorf("no usable group: %w", err)
			}
			fmt.Fprintf(w, "%d rows read, %d accepted in %d groups\n", ds.Rows, report.Accepted, store.Len())
			return nil
		},
	}
}

// describeMapping lists the header column chosen for each role.
func describeMapping(ds *ingest.Dataset) string {
	roles := []struct {
		name string
		idx  int
	}{
		{"date", ds.Mapping.Date},
		{"tmin", ds.Mapping.Tmin},
		{"tmax", ds.Mapping.Tmax},
		{"nf", ds.Mapping.NF},
		{"group", ds.Mapping.Group},
	}
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		col := "-"
		if r.idx >= 0 {
			col = fmt.Sprintf("%q", ds.Header[r.idx])
		}
		parts = append(parts, r.name+"="+col)
	}
	return strings.Join(parts, " ")
}
