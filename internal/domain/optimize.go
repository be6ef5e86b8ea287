package domain

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// ScanPoint is one Tb candidate on the scan curve. Invalid candidates stay on
// the curve with Reason set to the error kind that rejected them.
type ScanPoint struct {
	Tb        float64 `json:"tb"`
	R2        float64 `json:"r2"`
	MSE       float64 `json:"mse"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Valid     bool    `json:"valid"`
	Reason    string  `json:"reason,omitempty"`
}

// Evaluation is the fit of every group at a single Tb.
//
// In pooled mode Regression is the single fit over all groups' points and
// GroupFits is nil. In per-group mode GroupFits holds each group's fit and
// Regression summarises them: R2, MSE, Slope and Intercept are the means
// across groups and N is the total number of points.
type Evaluation struct {
	Tb         float64                     `json:"tb"`
	Regression RegressionResult            `json:"regression"`
	GroupFits  map[string]RegressionResult `json:"group_fits,omitempty"`
	Series     map[string]ThermalSeries    `json:"series"`
}

// OptimizationResult is the outcome of a calibration run. It is not modified
// after Optimize returns.
type OptimizationResult struct {
	BestTb         float64                     `json:"best_tb"`
	BestRegression RegressionResult            `json:"best_regression"`
	GroupFits      map[string]RegressionResult `json:"group_fits,omitempty"`
	ScanCurve      []ScanPoint                 `json:"scan_curve"`
	Series         map[string]ThermalSeries    `json:"series"`
	Config         ScanConfig                  `json:"config"`
	Groups         int                         `json:"groups"`
	Points         int                         `json:"points"`
	CompletedAt    time.Time                   `json:"completed_at"`
}

// Evaluate accumulates every group at tb and fits the regression selected by
// cfg.Pooling. Records before cfg.StartIndex accumulate thermal time but are
// left out of the fit.
func Evaluate(store *Store, tb float64, cfg ScanConfig) (Evaluation, error) {
	if cfg.StartIndex < 0 {
		return Evaluation{}, &InvalidRangeError{Reason: "start_index must not be negative"}
	}
	eval := Evaluation{
		Tb:     tb,
		Series: make(map[string]ThermalSeries, len(store.groups)),
	}

	var pooledX, pooledY []float64
	if cfg.Pooling == PoolingPerGroup {
		eval.GroupFits = make(map[string]RegressionResult, len(store.groups))
	} else {
		pooledX = make([]float64, 0, store.Points())
		pooledY = make([]float64, 0, store.Points())
	}

	for _, g := range store.groups {
		series, err := Accumulate(g, tb)
		if err != nil {
			return Evaluation{}, err
		}
		eval.Series[g.Name] = series

		x, y, err := regressionPoints(g, series, cfg.StartIndex)
		if err != nil {
			return Evaluation{}, err
		}

		if cfg.Pooling != PoolingPerGroup {
			pooledX = append(pooledX, x...)
			pooledY = append(pooledY, y...)
			continue
		}
		fit, err := Fit(x, y)
		if err != nil {
			return Evaluation{}, withGroup(err, g.Name)
		}
		eval.GroupFits[g.Name] = fit
	}

	if cfg.Pooling == PoolingPerGroup {
		eval.Regression = summarizeFits(store.groups, eval.GroupFits)
		return eval, nil
	}

	fit, err := Fit(pooledX, pooledY)
	if err != nil {
		return Evaluation{}, err
	}
	eval.Regression = fit
	return eval, nil
}

// regressionPoints pairs STa with NF for the records from start onwards that
// carry a development count.
func regressionPoints(g Group, series ThermalSeries, start int) ([]float64, []float64, error) {
	var x, y []float64
	for i := start; i < len(g.Observations); i++ {
		if !g.Observations[i].HasNF() {
			continue
		}
		x = append(x, series.Cumulative[i])
		y = append(y, g.Observations[i].NF)
	}
	if len(x) < minFitPoints {
		return nil, nil, &InsufficientDataError{Group: g.Name, Points: len(x), Need: minFitPoints}
	}
	return x, y, nil
}

// summarizeFits averages per-group fits in group name order so the result is
// independent of map iteration.
func summarizeFits(groups []Group, fits map[string]RegressionResult) RegressionResult {
	var sum RegressionResult
	for _, g := range groups {
		fit := fits[g.Name]
		sum.Slope += fit.Slope
		sum.Intercept += fit.Intercept
		sum.R2 += fit.R2
		sum.MSE += fit.MSE
		sum.N += fit.N
	}
	k := float64(len(groups))
	return RegressionResult{
		Slope:     sum.Slope / k,
		Intercept: sum.Intercept / k,
		R2:        sum.R2 / k,
		MSE:       sum.MSE / k,
		N:         sum.N,
	}
}

// withGroup attributes a fit failure to a group.
func withGroup(err error, group string) error {
	var degenerate *DegenerateFitError
	if errors.As(err, &degenerate) {
		return &DegenerateFitError{Group: group}
	}
	var insufficient *InsufficientDataError
	if errors.As(err, &insufficient) {
		return &InsufficientDataError{Group: group, Points: insufficient.Points, Need: insufficient.Need}
	}
	return err
}

type candidateOutcome struct {
	eval Evaluation
	err  error
}

// Optimize scans the Tb grid of cfg over every group in store and returns the
// best-scoring candidate together with the full scan curve.
//
// Candidates are ranked by cfg.Criterion; among equal scores the smallest Tb
// wins. Failing candidates are kept on the curve as invalid. Optimize fails
// with an *InvalidRangeError for a malformed cfg and with an *EmptyScanError
// when no candidate fits.
func Optimize(ctx context.Context, store *Store, cfg ScanConfig) (OptimizationResult, error) {
	tbs, err := cfg.Candidates()
	if err != nil {
		return OptimizationResult{}, err
	}

	outcomes, err := evaluateAll(ctx, store, tbs, cfg)
	if err != nil {
		return OptimizationResult{}, err
	}

	curve := make([]ScanPoint, len(tbs))
	reasons := make(map[string]int)
	var firstErr error
	best := -1
	for i, o := range outcomes {
		curve[i] = ScanPoint{Tb: tbs[i]}
		if o.err != nil {
			curve[i].Reason = ErrorKind(o.err)
			reasons[curve[i].Reason]++
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		fit := o.eval.Regression
		curve[i].R2 = fit.R2
		curve[i].MSE = fit.MSE
		curve[i].Slope = fit.Slope
		curve[i].Intercept = fit.Intercept
		curve[i].Valid = true

		if best < 0 || better(cfg.Criterion, fit, outcomes[best].eval.Regression) {
			best = i
		}
	}

	if best < 0 {
		return OptimizationResult{}, &EmptyScanError{Candidates: len(tbs), Reasons: reasons, Cause: firstErr}
	}

	winner := outcomes[best].eval
	return OptimizationResult{
		BestTb:         winner.Tb,
		BestRegression: winner.Regression,
		GroupFits:      winner.GroupFits,
		ScanCurve:      curve,
		Series:         winner.Series,
		Config:         cfg,
		Groups:         store.Len(),
		Points:         store.Points(),
		CompletedAt:    clock.Now(),
	}, nil
}

// better reports whether a strictly beats b. Ties keep the earlier, smaller Tb.
func better(c Criterion, a, b RegressionResult) bool {
	if c == CriterionMSE {
		return a.MSE < b.MSE
	}
	return a.R2 > b.R2
}

// evaluateAll runs Evaluate for every candidate, concurrently when
// cfg.Workers > 1. Each candidate writes only its own slot.
func evaluateAll(ctx context.Context, store *Store, tbs []float64, cfg ScanConfig) ([]candidateOutcome, error) {
	outcomes := make([]candidateOutcome, len(tbs))

	if cfg.Workers <= 1 {
		for i, tb := range tbs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			eval, err := Evaluate(store, tb, cfg)
			outcomes[i] = candidateOutcome{eval: eval, err: err}
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, tb := range tbs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			eval, err := Evaluate(store, tb, cfg)
			outcomes[i] = candidateOutcome{eval: eval, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
