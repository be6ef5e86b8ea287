package domain

import (
	"math"
	"time"
)

// DefaultGroup names the group used when the input carries no group identifier.
const DefaultGroup = "default"

// Observation is one day of temperature and phenology data for a group.
// A zero Date means the record is ordered by its input position only.
//
// NF is NaN on days without a development count. Such records still add
// thermal time but are left out of the regression.
type Observation struct {
	Date  time.Time `json:"date"`
	Tmin  float64   `json:"tmin"`
	Tmax  float64   `json:"tmax"`
	NF    float64   `json:"nf"`
	Group string    `json:"group"`

	// DateErr is set by readers when a supplied date could not be parsed.
	DateErr string `json:"-"`
}

// Tmean returns the daily mean temperature, (Tmin + Tmax) / 2.
func (o Observation) Tmean() float64 {
	return (o.Tmin + o.Tmax) / 2
}

// HasNF reports whether the record carries a development count.
func (o Observation) HasNF() bool {
	return !math.IsNaN(o.NF)
}

// Validate checks the record invariants and returns a *DataError naming the
// first offending field. idx is the record's position in its group's input.
// A missing (NaN) NF is valid; an infinite or negative one is not.
func (o Observation) Validate(idx int) error {
	switch {
	case o.DateErr != "":
		return &DataError{Group: o.Group, Index: idx, Field: "date", Reason: o.DateErr}
	case !isFinite(o.Tmin):
		return &DataError{Group: o.Group, Index: idx, Field: "tmin", Reason: "missing or non-numeric"}
	case !isFinite(o.Tmax):
		return &DataError{Group: o.Group, Index: idx, Field: "tmax", Reason: "missing or non-numeric"}
	case math.IsInf(o.NF, 0):
		return &DataError{Group: o.Group, Index: idx, Field: "nf", Reason: "non-numeric"}
	case o.Tmin > o.Tmax:
		return &DataError{Group: o.Group, Index: idx, Field: "tmin", Reason: "tmin is greater than tmax"}
	case o.NF < 0:
		return &DataError{Group: o.Group, Index: idx, Field: "nf", Reason: "negative development count"}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
