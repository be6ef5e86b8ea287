package domain

import "fmt"

// RegressionResult is an ordinary least-squares line NF = Slope*STa + Intercept
// with its goodness of fit.
type RegressionResult struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	MSE       float64 `json:"mse"`
	N         int     `json:"n_points"`
}

// Predict evaluates the fitted line at x.
func (r RegressionResult) Predict(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// Fit computes the closed-form OLS line of y on x.
//
// R² is 1 - SSres/SStot and MSE is SSres/n. A constant y has no variance to
// explain and fails with a *DegenerateFitError. A constant x (every day
// below Tb) yields a flat line through mean(y) with R² = 0.
func Fit(x, y []float64) (RegressionResult, error) {
	if len(x) != len(y) {
		return RegressionResult{}, fmt.Errorf("regression: %d x values but %d y values", len(x), len(y))
	}
	n := len(x)
	if n < minFitPoints {
		return RegressionResult{}, &InsufficientDataError{Points: n, Need: minFitPoints}
	}

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy, syy float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if syy == 0 {
		return RegressionResult{}, &DegenerateFitError{}
	}

	slope := 0.0
	if sxx > 0 {
		slope = sxy / sxx
	}
	intercept := meanY - slope*meanX

	var ssRes float64
	for i := range x {
		r := y[i] - (slope*x[i] + intercept)
		ssRes += r * r
	}

	return RegressionResult{
		Slope:     slope,
		Intercept: intercept,
		R2:        clamp01(1 - ssRes/syy),
		MSE:       ssRes / float64(n),
		N:         n,
	}, nil
}

// clamp01 absorbs rounding that pushes R² a few ulps outside [0, 1].
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
