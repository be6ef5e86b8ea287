package domain

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCandidates(t *testing.T) {
	cases := []struct {
		name     string
		cfg      ScanConfig
		expected []float64
	}{
		{"single candidate", ScanConfig{TbMin: 5, TbMax: 5, TbStep: 1}, []float64{5}},
		{"inclusive endpoints", ScanConfig{TbMin: 5, TbMax: 7, TbStep: 0.5}, []float64{5, 5.5, 6, 6.5, 7}},
		{"tenth steps stay clean", ScanConfig{TbMin: 0, TbMax: 0.5, TbStep: 0.1}, []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}},
		{"uneven step appends max", ScanConfig{TbMin: 5, TbMax: 6, TbStep: 0.4}, []float64{5, 5.4, 5.8, 6}},
		{"step larger than range", ScanConfig{TbMin: 5, TbMax: 6, TbStep: 3}, []float64{5, 6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.Pooling = PoolingPooled
			cfg.Criterion = CriterionR2

			tbs, err := cfg.Candidates()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, tbs)
		})
	}
}

func TestScanConfig_Invalid(t *testing.T) {
	base := DefaultScanConfig()
	cases := []struct {
		name   string
		mutate func(*ScanConfig)
	}{
		{"min above max", func(c *ScanConfig) { c.TbMin, c.TbMax = 15, 5 }},
		{"zero step", func(c *ScanConfig) { c.TbStep = 0 }},
		{"negative step", func(c *ScanConfig) { c.TbStep = -0.5 }},
		{"unknown pooling", func(c *ScanConfig) { c.Pooling = "by-site" }},
		{"unknown criterion", func(c *ScanConfig) { c.Criterion = "aic" }},
		{"negative start", func(c *ScanConfig) { c.StartIndex = -1 }},
		{"oversized grid", func(c *ScanConfig) { c.TbMin, c.TbMax, c.TbStep = 0, 1000, 0.001 }},
		{"grid over explicit limit", func(c *ScanConfig) { c.MaxCandidates = 3 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)

			_, err := cfg.Candidates()
			var rangeErr *InvalidRangeError
			require.ErrorAs(t, err, &rangeErr)
			assert.Equal(t, KindInvalidRange, ErrorKind(err))
		})
	}
}

func TestOptimize_SingleCandidate(t *testing.T) {
	store := mustStore(map[string][]Observation{"E1": scenarioGroup()})
	cfg := DefaultScanConfig()
	cfg.TbMin, cfg.TbMax, cfg.TbStep = 5, 5, 1

	res, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	require.Len(t, res.ScanCurve, 1)
	assert.Equal(t, 5.0, res.BestTb)
	assert.True(t, res.ScanCurve[0].Valid)
	assert.Equal(t, res.BestRegression.R2, res.ScanCurve[0].R2)
}

func TestOptimize_RecoversKnownTb(t *testing.T) {
	store := mustStore(map[string][]Observation{
		"E1": syntheticGroup(80, 10, 0.025, 2, 0),
		"E2": syntheticGroup(80, 10, 0.025, 2, 1.7),
	})

	res, err := Optimize(context.Background(), store, DefaultScanConfig())
	require.NoError(t, err)

	assert.InDelta(t, 10.0, res.BestTb, 1e-9)
	assert.InDelta(t, 1.0, res.BestRegression.R2, 1e-9)
	assert.InDelta(t, 0.025, res.BestRegression.Slope, 1e-9)
	assert.InDelta(t, 2.0, res.BestRegression.Intercept, 1e-6)
	assert.Len(t, res.ScanCurve, 21)
	assert.Equal(t, 2, res.Groups)
	assert.Equal(t, 160, res.Points)
	require.Contains(t, res.Series, "E1")
	assert.Equal(t, res.BestTb, res.Series["E1"].Tb)
	assert.Len(t, res.Series["E1"].Cumulative, 80)
}

func TestOptimize_MSECriterion(t *testing.T) {
	store := mustStore(map[string][]Observation{
		"E1": syntheticGroup(80, 12, 0.03, 1, 0.4),
	})
	cfg := DefaultScanConfig()
	cfg.Criterion = CriterionMSE

	res, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 12.0, res.BestTb, 1e-9)
	assert.InDelta(t, 0.0, res.BestRegression.MSE, 1e-12)
}

func TestOptimize_RoundTrip(t *testing.T) {
	store := mustStore(map[string][]Observation{
		"E1": syntheticGroup(45, 9, 0.02, 1, 0.2),
		"E2": scenarioGroup(),
	})
	for _, pooling := range []PoolingMode{PoolingPooled, PoolingPerGroup} {
		t.Run(string(pooling), func(t *testing.T) {
			cfg := DefaultScanConfig()
			cfg.Pooling = pooling

			res, err := Optimize(context.Background(), store, cfg)
			require.NoError(t, err)

			eval, err := Evaluate(store, res.BestTb, cfg)
			require.NoError(t, err)
			assert.Equal(t, res.BestRegression, eval.Regression)
			assert.Equal(t, res.GroupFits, eval.GroupFits)
			assert.Equal(t, res.Series, eval.Series)
		})
	}
}

func TestOptimize_TieKeepsSmallestTb(t *testing.T) {
	// Constant mean temperature 20: STa at Tb 12 and 16 differ by an exact
	// factor of two, so both candidates score identically.
	days := []Observation{
		obs(0, 15, 25, 1),
		obs(1, 15, 25, 2),
		obs(2, 15, 25, 2),
		obs(3, 15, 25, 4),
		obs(4, 15, 25, 5),
	}
	store := mustStore(map[string][]Observation{"E1": days})
	cfg := DefaultScanConfig()
	cfg.TbMin, cfg.TbMax, cfg.TbStep = 12, 16, 4

	res, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	require.Len(t, res.ScanCurve, 2)
	require.Equal(t, res.ScanCurve[0].R2, res.ScanCurve[1].R2)
	assert.Equal(t, 12.0, res.BestTb)
}

func TestOptimize_PerGroup(t *testing.T) {
	store := mustStore(map[string][]Observation{
		"E1": syntheticGroup(60, 10, 0.03, 1, 0),
		"E2": syntheticGroup(60, 10, 0.015, 3, 2.1),
	})
	cfg := DefaultScanConfig()
	cfg.Pooling = PoolingPerGroup

	res, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, res.BestTb, 1e-9)
	require.Len(t, res.GroupFits, 2)
	assert.InDelta(t, 0.03, res.GroupFits["E1"].Slope, 1e-9)
	assert.InDelta(t, 0.015, res.GroupFits["E2"].Slope, 1e-9)
	assert.InDelta(t, 0.0225, res.BestRegression.Slope, 1e-9)
	assert.Equal(t, 120, res.BestRegression.N)
}

func TestOptimize_PerGroupDegenerateGroupInvalidatesCandidates(t *testing.T) {
	flat := []Observation{obs(0, 10, 20, 2), obs(1, 12, 22, 2), obs(2, 14, 24, 2)}
	store := mustStore(map[string][]Observation{
		"E1": scenarioGroup(),
		"E2": flat,
	})
	cfg := DefaultScanConfig()
	cfg.Pooling = PoolingPerGroup

	_, err := Optimize(context.Background(), store, cfg)

	var empty *EmptyScanError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, map[string]int{KindDegenerateFit: 21}, empty.Reasons)

	var degenerate *DegenerateFitError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, "E2", degenerate.Group)
}

func TestOptimize_ConstantNF(t *testing.T) {
	flat := []Observation{obs(0, 10, 20, 2), obs(1, 12, 22, 2), obs(2, 14, 24, 2), obs(3, 16, 26, 2)}
	store := mustStore(map[string][]Observation{"E1": flat})

	_, err := Optimize(context.Background(), store, DefaultScanConfig())

	var empty *EmptyScanError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 21, empty.Candidates)
	assert.Equal(t, KindEmptyScan, ErrorKind(err))

	var degenerate *DegenerateFitError
	assert.ErrorAs(t, err, &degenerate)
}

func TestOptimize_StartIndexPastData(t *testing.T) {
	store := mustStore(map[string][]Observation{"E1": scenarioGroup()})
	cfg := DefaultScanConfig()
	cfg.StartIndex = 3

	_, err := Optimize(context.Background(), store, cfg)

	var empty *EmptyScanError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, map[string]int{KindInsufficientData: 21}, empty.Reasons)
}

func TestOptimize_StartIndex(t *testing.T) {
	store := mustStore(map[string][]Observation{
		"E1": syntheticGroup(40, 10, 0.02, 1, 0),
	})
	cfg := DefaultScanConfig()
	cfg.StartIndex = 5

	res, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	assert.Equal(t, 35, res.BestRegression.N)
	assert.Len(t, res.Series["E1"].Cumulative, 40)
	assert.InDelta(t, 10.0, res.BestTb, 1e-9)
}

func TestOptimize_InvalidRange(t *testing.T) {
	store := mustStore(map[string][]Observation{"E1": scenarioGroup()})
	cfg := DefaultScanConfig()
	cfg.TbMin, cfg.TbMax = 10, 5

	_, err := Optimize(context.Background(), store, cfg)

	var rangeErr *InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestOptimize_ParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)))
	defer SetClock(nil)

	store := mustStore(map[string][]Observation{
		"E1": syntheticGroup(70, 11, 0.02, 1, 0.3),
		"E2": syntheticGroup(70, 11, 0.02, 1, 2.2),
	})
	cfg := DefaultScanConfig()
	cfg.TbStep = 0.1

	seq, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	cfg.Workers = 8
	par, err := Optimize(context.Background(), store, cfg)
	require.NoError(t, err)

	par.Config.Workers = seq.Config.Workers
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Fatalf("parallel scan differs from sequential (-seq +par):\n%s", diff)
	}
}

func TestOptimize_Canceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := mustStore(map[string][]Observation{"E1": scenarioGroup()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		cfg := DefaultScanConfig()
		cfg.Workers = workers

		_, err := Optimize(ctx, store, cfg)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, KindCanceled, ErrorKind(err))
	}
}

func TestEvaluate_NegativeStartIndex(t *testing.T) {
	store := mustStore(map[string][]Observation{"E1": scenarioGroup()})
	cfg := DefaultScanConfig()
	cfg.StartIndex = -1

	require.NotPanics(t, func() {
		_, err := Evaluate(store, 10, cfg)

		var rangeErr *InvalidRangeError
		require.ErrorAs(t, err, &rangeErr)
		assert.Equal(t, KindInvalidRange, ErrorKind(err))
	})
}

func TestEvaluate_SparseCountsAccumulateEveryDay(t *testing.T) {
	// Tmean 15 every day; counts only on days 1, 3 and 5.
	store := mustStore(map[string][]Observation{
		"E1": {
			obs(0, 10, 20, 1),
			obs(1, 10, 20, math.NaN()),
			obs(2, 10, 20, 2),
			obs(3, 10, 20, math.NaN()),
			obs(4, 10, 20, 3),
		},
	})

	eval, err := Evaluate(store, 10, DefaultScanConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10, 15, 20, 25}, eval.Series["E1"].Cumulative)

	g, _ := store.Group("E1")
	x, y, err := regressionPoints(g, eval.Series["E1"], 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 15, 25}, x)
	assert.Equal(t, []float64{1, 2, 3}, y)

	assert.Equal(t, 3, eval.Regression.N)
	assert.InDelta(t, 0.1, eval.Regression.Slope, 1e-12)
	assert.InDelta(t, 1.0, eval.Regression.R2, 1e-12)
}

func TestEvaluate_StartIndexCountsOnlyRecordsWithNF(t *testing.T) {
	store := mustStore(map[string][]Observation{
		"E1": {
			obs(0, 10, 20, 1),
			obs(1, 10, 20, math.NaN()),
			obs(2, 10, 20, 2),
			obs(3, 10, 20, math.NaN()),
		},
	})
	cfg := DefaultScanConfig()
	cfg.StartIndex = 1

	_, err := Evaluate(store, 10, cfg)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Points)
}
