package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tb-calibration/internal/calibration"
	"github.com/couchcryptid/tb-calibration/internal/domain"
)

var fixture = filepath.Join("..", "..", "data", "mock", "field_trial.csv")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_Summary(t *testing.T) {
	out, err := execute(t, "run", fixture)
	require.NoError(t, err)

	assert.Contains(t, out, "Calibrated 2 groups, 24 observations, 21 Tb candidates (pooled, r2)")
	assert.Contains(t, out, "Best Tb: 10.00 °C")
	assert.Contains(t, out, "Fit is excellent")
}

func TestRun_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	scanPath := filepath.Join(dir, "scan.csv")
	seriesPath := filepath.Join(dir, "out", "series.csv")
	jsonPath := filepath.Join(dir, "report.json")

	_, err := execute(t, "run", fixture,
		"--tb-min", "8", "--tb-max", "12", "--tb-step", "1",
		"--pooling", "per-group",
		"--scan-out", scanPath, "--series-out", seriesPath, "--json-out", jsonPath)
	require.NoError(t, err)

	scan := readCSV(t, scanPath)
	require.Len(t, scan, 6)
	assert.Equal(t, []string{"tb", "r2", "mse", "slope", "intercept", "valid", "reason"}, scan[0])
	assert.Equal(t, "8", scan[1][0])

	series := readCSV(t, seriesPath)
	assert.Len(t, series, 25)
	assert.Equal(t, "E1", series[1][0])
	assert.Equal(t, "2024-09-01", series[1][2])

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var report calibration.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, calibration.StatusSucceeded, report.Status)
	assert.Equal(t, domain.PoolingPerGroup, report.Config.Pooling)
	assert.InDelta(t, 10, report.Result.BestTb, 1e-9)
}

func TestRun_ConfigFileAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calib.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tb_min: 9\ntb_max: 11\ntb_step: 1\ncriterion: mse\n"), 0o600))

	out, err := execute(t, "run", fixture, "--config", path, "--tb-max", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "4 Tb candidates (pooled, mse)")
}

func TestRun_InvalidRange(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "report.json")
	_, err := execute(t, "run", fixture, "--tb-min", "15", "--tb-max", "5", "--json-out", jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.KindInvalidRange)

	data, readErr := os.ReadFile(jsonPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `"status": "failed"`)
}

func TestRun_MissingFile(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestRun_BadSeparator(t *testing.T) {
	_, err := execute(t, "run", fixture, "--separator", ";;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--separator")
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, `date="Data"`)
	assert.Contains(t, out, `group="Epoca"`)
	assert.Contains(t, out, "24 rows read, 24 accepted in 2 groups")
}

func TestValidate_ReportsDroppedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	body := "tmin,tmax,leaves\n10,20,0\n25,20,1\n11,21,2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dropped: ")
	assert.Contains(t, out, "tmin is greater than tmax")
	assert.Contains(t, out, "3 rows read, 2 accepted in 1 groups")
}

func TestValidate_SparseCountsAndBadDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	body := "date,tmin,tmax,nf\n2024-03-01,10,20,1\n2024-03-02,10,20,\n2024-03-03,10,20,2\n2024-99-04,10,20,3\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "line 5")
	assert.Contains(t, out, "1 of 3 records have no NF")
	assert.Contains(t, out, "4 rows read, 3 accepted in 1 groups")
}

func TestValidate_ColumnOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	body := "lo,hi,count\n10,20,0\n11,21,2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := execute(t, "validate", path)
	require.Error(t, err)

	out, err := execute(t, "validate", path, "--col-tmin", "lo", "--col-tmax", "hi", "--col-nf", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows read, 2 accepted in 1 groups")
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // read-only
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
