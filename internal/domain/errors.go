package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds reported to callers and used as metric labels.
const (
	KindData             = "data_error"
	KindInsufficientData = "insufficient_data"
	KindDegenerateFit    = "degenerate_fit"
	KindInvalidRange     = "invalid_range"
	KindEmptyScan        = "empty_scan"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// DataError reports a malformed or missing observation field.
type DataError struct {
	Group  string `json:"group"`
	Index  int    `json:"index"` // position in the group's input order
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *DataError) Error() string {
	return fmt.Sprintf("group %q record %d: %s: %s", e.Group, e.Index, e.Field, e.Reason)
}

// InsufficientDataError reports fewer usable points than a fit requires.
// An empty Group means the pooled point set.
type InsufficientDataError struct {
	Group  string `json:"group,omitempty"`
	Points int    `json:"points"`
	Need   int    `json:"need"`
}

func (e *InsufficientDataError) Error() string {
	if e.Group == "" {
		return fmt.Sprintf("insufficient data: %d usable points, need at least %d", e.Points, e.Need)
	}
	return fmt.Sprintf("group %q: insufficient data: %d usable points, need at least %d", e.Group, e.Points, e.Need)
}

// DegenerateFitError reports a dependent variable with zero variance, for
// which R² is undefined.
type DegenerateFitError struct {
	Group string `json:"group,omitempty"`
}

func (e *DegenerateFitError) Error() string {
	if e.Group == "" {
		return "degenerate fit: NF is constant, R² is undefined"
	}
	return fmt.Sprintf("group %q: degenerate fit: NF is constant, R² is undefined", e.Group)
}

// InvalidRangeError reports a malformed scan configuration.
type InvalidRangeError struct {
	Reason string `json:"reason"`
}

func (e *InvalidRangeError) Error() string {
	return "invalid scan configuration: " + e.Reason
}

// EmptyScanError is returned when no Tb candidate produced a valid fit.
// Reasons counts the failing candidates by error kind; Cause is the first
// failure in scan order.
type EmptyScanError struct {
	Candidates int            `json:"candidates"`
	Reasons    map[string]int `json:"reasons"`
	Cause      error          `json:"-"`
}

func (e *EmptyScanError) Error() string {
	kinds := make([]string, 0, len(e.Reasons))
	for k := range e.Reasons {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, e.Reasons[k]))
	}
	return fmt.Sprintf("no valid fit among %d Tb candidates (%s)", e.Candidates, strings.Join(parts, ", "))
}

func (e *EmptyScanError) Unwrap() error { return e.Cause }

// ErrorKind maps err onto the error taxonomy. An EmptyScanError is reported
// as empty_scan even though it wraps the first candidate failure.
func ErrorKind(err error) string {
	var (
		emptyErr        *EmptyScanError
		rangeErr        *InvalidRangeError
		degenerateErr   *DegenerateFitError
		insufficientErr *InsufficientDataError
		dataErr         *DataError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &emptyErr):
		return KindEmptyScan
	case errors.As(err, &rangeErr):
		return KindInvalidRange
	case errors.As(err, &degenerateErr):
		return KindDegenerateFit
	case errors.As(err, &insufficientErr):
		return KindInsufficientData
	case errors.As(err, &dataErr):
		return KindData
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
