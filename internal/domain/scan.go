package domain

import (
	"fmt"
	"math"
)

// PoolingMode selects how groups are combined when scoring a Tb candidate.
type PoolingMode string

const (
	// PoolingPooled fits one line to the (STa, NF) points of all groups.
	PoolingPooled PoolingMode = "pooled"
	// PoolingPerGroup fits every group separately and averages the scores.
	PoolingPerGroup PoolingMode = "per-group"
)

// Criterion selects the score used to rank Tb candidates.
type Criterion string

const (
	// CriterionR2 picks the candidate with the highest R².
	CriterionR2 Criterion = "r2"
	// CriterionMSE picks the candidate with the lowest mean squared error.
	CriterionMSE Criterion = "mse"
)

const (
	// DefaultMaxCandidates caps the grid size when ScanConfig.MaxCandidates is unset.
	DefaultMaxCandidates = 2001

	// tbEpsilon absorbs float drift when stepping through the grid.
	tbEpsilon = 1e-9
	tbScale   = 1e9
)

// ScanConfig is the explicit configuration of one calibration run.
type ScanConfig struct {
	TbMin     float64     `json:"tb_min"`
	TbMax     float64     `json:"tb_max"`
	TbStep    float64     `json:"tb_step"`
	Pooling   PoolingMode `json:"pooling"`
	Criterion Criterion   `json:"criterion"`

	// StartIndex excludes the first records of every group (pre-emergence)
	// from the regression. They still accumulate thermal time.
	StartIndex int `json:"start_index"`

	// Workers > 1 evaluates candidates concurrently.
	Workers       int `json:"workers"`
	MaxCandidates int `json:"max_candidates"`
}

// DefaultScanConfig returns the calibration defaults: Tb from 5 to 15 °C in
// 0.5 °C steps, pooled groups, ranked by R².
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		TbMin:         5,
		TbMax:         15,
		TbStep:        0.5,
		Pooling:       PoolingPooled,
		Criterion:     CriterionR2,
		Workers:       1,
		MaxCandidates: DefaultMaxCandidates,
	}
}

// Validate reports a malformed configuration as an *InvalidRangeError.
func (c ScanConfig) Validate() error {
	switch {
	case !isFinite(c.TbMin) || !isFinite(c.TbMax) || !isFinite(c.TbStep):
		return &InvalidRangeError{Reason: "tb bounds and step must be finite numbers"}
	case c.TbMin > c.TbMax:
		return &InvalidRangeError{Reason: fmt.Sprintf("tb_min %g is greater than tb_max %g", c.TbMin, c.TbMax)}
	case c.TbStep <= 0:
		return &InvalidRangeError{Reason: fmt.Sprintf("tb_step must be positive, got %g", c.TbStep)}
	case c.Pooling != PoolingPooled && c.Pooling != PoolingPerGroup:
		return &InvalidRangeError{Reason: fmt.Sprintf("unknown pooling mode %q", c.Pooling)}
	case c.Criterion != CriterionR2 && c.Criterion != CriterionMSE:
		return &InvalidRangeError{Reason: fmt.Sprintf("unknown selection criterion %q", c.Criterion)}
	case c.StartIndex < 0:
		return &InvalidRangeError{Reason: "start_index must not be negative"}
	case c.Workers < 0:
		return &InvalidRangeError{Reason: "workers must not be negative"}
	case c.MaxCandidates < 0:
		return &InvalidRangeError{Reason: "max_candidates must not be negative"}
	}
	return nil
}

// Candidates returns the Tb grid in ascending order: TbMin, TbMin+TbStep, ...
// up to TbMax. TbMax is appended when the step does not land on it, so both
// endpoints are always scanned.
func (c ScanConfig) Candidates() ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	limit := c.MaxCandidates
	if limit == 0 {
		limit = DefaultMaxCandidates
	}
	steps := math.Floor((c.TbMax-c.TbMin)/c.TbStep + tbEpsilon)
	if steps+1 > float64(limit) {
		return nil, &InvalidRangeError{
			Reason: fmt.Sprintf("grid of %.0f candidates exceeds the limit of %d", steps+1, limit),
		}
	}

	n := int(steps) + 1
	tbs := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		tbs = append(tbs, roundTb(c.TbMin+float64(i)*c.TbStep))
	}
	if c.TbMax-tbs[len(tbs)-1] > tbEpsilon {
		if len(tbs)+1 > limit {
			return nil, &InvalidRangeError{
				Reason: fmt.Sprintf("grid of %d candidates exceeds the limit of %d", len(tbs)+1, limit),
			}
		}
		tbs = append(tbs, roundTb(c.TbMax))
	}
	return tbs, nil
}

// roundTb snaps a grid value to 1e-9 so 0.1-style steps print cleanly.
func roundTb(v float64) float64 {
	return math.Round(v*tbScale) / tbScale
}
