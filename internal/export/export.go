// Package export writes calibration results as CSV tables and JSON documents.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/tb-calibration/internal/domain"
)

var (
	scanHeader        = []string{"tb", "r2", "mse", "slope", "intercept", "valid", "reason"}
	seriesHeader      = []string{"group", "day", "date", "tmin", "tmax", "tmean", "std", "sta", "nf"}
	observationHeader = []string{"date", "tmin", "tmax", "nf", "group"}
)

// WriteScanCSV writes one row per Tb candidate in scan order. Invalid
// candidates keep their Tb and reason with empty score columns.
func WriteScanCSV(w io.Writer, curve []domain.ScanPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scanHeader); err != nil {
		return fmt.Errorf("write scan header: %w", err)
	}
	for _, p := range curve {
		row := []string{formatFloat(p.Tb), "", "", "", "", strconv.FormatBool(p.Valid), p.Reason}
		if p.Valid {
			row[1] = formatFloat(p.R2)
			row[2] = formatFloat(p.MSE)
			row[3] = formatFloat(p.Slope)
			row[4] = formatFloat(p.Intercept)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write scan row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeriesCSV writes the daily thermal series of every group in store next
// to its observations. series is keyed by group name, as in
// domain.OptimizationResult.Series. Day is the 1-based position in the group.
func WriteSeriesCSV(w io.Writer, store *domain.Store, series map[string]domain.ThermalSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(seriesHeader); err != nil {
		return fmt.Errorf("write series header: %w", err)
	}
	for _, g := range store.Groups() {
		s, ok := series[g.Name]
		if !ok {
			return fmt.Errorf("no thermal series for group %q", g.Name)
		}
		if len(s.Cumulative) != len(g.Observations) {
			return fmt.Errorf("group %q: series has %d days, group has %d observations",
				g.Name, len(s.Cumulative), len(g.Observations))
		}
		for i, obs := range g.Observations {
			row := []string{
				g.Name,
				strconv.Itoa(i + 1),
				formatDate(obs.Date),
				formatFloat(obs.Tmin),
				formatFloat(obs.Tmax),
				formatFloat(obs.Tmean()),
				formatFloat(s.Increments[i]),
				formatFloat(s.Cumulative[i]),
				formatFloat(obs.NF),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write series row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteObservationsCSV writes raw observations in a layout ReadCSV detects
// without overrides. Groups are written in name order.
func WriteObservationsCSV(w io.Writer, groups map[string][]domain.Observation) error {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	cw := csv.NewWriter(w)
	if err := cw.Write(observationHeader); err != nil {
		return fmt.Errorf("write observation header: %w", err)
	}
	for _, name := range names {
		for _, obs := range groups[name] {
			row := []string{
				formatDate(obs.Date),
				formatFloat(obs.Tmin),
				formatFloat(obs.Tmax),
				formatFloat(obs.NF),
				name,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write observation row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// formatFloat leaves NaN cells empty so missing counts read back as missing.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
