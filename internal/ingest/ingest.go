// Package ingest reads field observation tables (CSV) into calibration input.
//
// Column roles are detected from header names in English or Portuguese and
// can be overridden by name. Cells are parsed leniently: decimal commas are
// accepted, unparseable numbers become NaN and unparseable dates are recorded
// on the observation, so record-level problems are reported by the
// observation store rather than aborting the read. A blank NF cell marks a
// day with weather only.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/tb-calibration/internal/domain"
)

// ErrMissingColumn is returned when a required column cannot be located.
var ErrMissingColumn = errors.New("required column not found")

// Columns names header columns explicitly. Empty fields are auto-detected.
type Columns struct {
	Date  string
	Tmin  string
	Tmax  string
	NF    string
	Group string
}

// Options controls ReadCSV.
type Options struct {
	Columns Columns
	// Comma is the field separator. Zero detects ';' or ',' from the header.
	Comma rune
}

// Mapping holds the header index of each column role; -1 marks an absent
// optional column.
type Mapping struct {
	Date  int `json:"date"`
	Tmin  int `json:"tmin"`
	Tmax  int `json:"tmax"`
	NF    int `json:"nf"`
	Group int `json:"group"`
}

// Dataset is the parsed content of one table.
type Dataset struct {
	Header  []string
	Mapping Mapping
	Rows    int
	Groups  map[string][]domain.Observation
}

var (
	tminPatterns  = []string{"tmin", "t min", "temp min", "temperatura min", "temperatura mín"}
	tmaxPatterns  = []string{"tmax", "t max", "temp max", "temperatura max", "temperatura máx"}
	nfPatterns    = []string{"nf", "folhas", "numero", "número", "leaves"}
	groupPatterns = []string{"group", "grupo", "epoca", "época", "cultivar", "sowing"}
	// Date names match as a prefix only; "dia" is a substring of "media".
	datePrefixes = []string{"data", "date", "dia", "day"}
)

// DetectColumns resolves column roles in header. Explicit names in overrides
// are matched case-insensitively and win over detection. Tmin, Tmax and NF
// are required.
func DetectColumns(header []string, overrides Columns) (Mapping, error) {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalize(h)
	}
	taken := make(map[int]bool)

	pick := func(role, override string, match func(string) bool) (int, error) {
		if override != "" {
			want := normalize(override)
			for i, h := range norm {
				if h == want {
					taken[i] = true
					return i, nil
				}
			}
			return -1, fmt.Errorf("%w: %s column %q", ErrMissingColumn, role, override)
		}
		for i, h := range norm {
			if !taken[i] && match(h) {
				taken[i] = true
				return i, nil
			}
		}
		return -1, nil
	}

	var (
		m   Mapping
		err error
	)
	if m.Tmin, err = pick("tmin", overrides.Tmin, containsAny(tminPatterns)); err != nil {
		return Mapping{}, err
	}
	if m.Tmax, err = pick("tmax", overrides.Tmax, containsAny(tmaxPatterns)); err != nil {
		return Mapping{}, err
	}
	if m.Date, err = pick("date", overrides.Date, hasAnyPrefix(datePrefixes)); err != nil {
		return Mapping{}, err
	}
	if m.Group, err = pick("group", overrides.Group, containsAny(groupPatterns)); err != nil {
		return Mapping{}, err
	}
	if m.NF, err = pick("nf", overrides.NF, containsAny(nfPatterns)); err != nil {
		return Mapping{}, err
	}

	var missing []string
	if m.Tmin < 0 {
		missing = append(missing, "tmin")
	}
	if m.Tmax < 0 {
		missing = append(missing, "tmax")
	}
	if m.NF < 0 {
		missing = append(missing, "nf")
	}
	if len(missing) > 0 {
		return Mapping{}, fmt.Errorf("%w: %s (header: %s)", ErrMissingColumn,
			strings.Join(missing, ", "), strings.Join(header, ", "))
	}
	return m, nil
}

// ReadCSV parses a table into observations grouped by the group column, or
// under domain.DefaultGroup when there is none. Rows keep their input order.
// A malformed date aborts the read; malformed numbers become NaN.
func ReadCSV(r io.Reader, opts Options) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = opts.Comma
	if reader.Comma == 0 {
		reader.Comma = detectComma(data)
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	mapping, err := DetectColumns(header, opts.Columns)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Header:  header,
		Mapping: mapping,
		Groups:  make(map[string][]domain.Observation),
	}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if blank(row) {
			continue
		}

		obs := domain.Observation{
			Tmin:  parseNumber(cell(row, mapping.Tmin)),
			Tmax:  parseNumber(cell(row, mapping.Tmax)),
			NF:    parseNumber(cell(row, mapping.NF)),
			Group: domain.DefaultGroup,
		}
		if g := cell(row, mapping.Group); g != "" {
			obs.Group = g
		}
		if mapping.Date >= 0 {
			if obs.Date, err = ParseDate(cell(row, mapping.Date)); err != nil {
				obs.DateErr = fmt.Sprintf("line %d: %v", line, err)
			}
		}
		ds.Groups[obs.Group] = append(ds.Groups[obs.Group], obs)
		ds.Rows++
	}
	return ds, nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", time.RFC3339}

// ParseDate accepts ISO dates, day-first dates, RFC 3339 timestamps and plain
// day ordinals. Ordinals map to days after the zero time so they sort in
// numeric order.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Time{}.AddDate(0, 0, n), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseNumber(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func detectComma(data []byte) rune {
	first, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.ContainsRune(first, ';') && !bytes.ContainsRune(first, ',') {
		return ';'
	}
	return ','
}

func normalize(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", ".", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

func containsAny(patterns []string) func(string) bool {
	return func(h string) bool {
		for _, p := range patterns {
			if strings.Contains(h, p) {
				return true
			}
		}
		return false
	}
}

func hasAnyPrefix(prefixes []string) func(string) bool {
	return func(h string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(h, p) {
				return true
			}
		}
		return false
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
