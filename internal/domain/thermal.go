package domain

import "math"

// ThermalSeries holds the daily degree-day increments and their running sum
// (STa) for one group at one base temperature, aligned 1:1 with the group's
// observations.
type ThermalSeries struct {
	Group      string    `json:"group"`
	Tb         float64   `json:"tb"`
	Increments []float64 `json:"increments"`
	Cumulative []float64 `json:"cumulative"`
}

// Increment returns the daily thermal increment by the averaging method:
// max(0, (tmin+tmax)/2 - tb). Days colder than tb contribute zero.
func Increment(tmin, tmax, tb float64) float64 {
	return math.Max(0, (tmin+tmax)/2-tb)
}

// Accumulate computes the thermal series of g at tb. Accumulation starts at
// zero for every group. It fails with a *DataError on the first record that
// violates the observation invariants.
func Accumulate(g Group, tb float64) (ThermalSeries, error) {
	series := ThermalSeries{
		Group:      g.Name,
		Tb:         tb,
		Increments: make([]float64, len(g.Observations)),
		Cumulative: make([]float64, len(g.Observations)),
	}

	sum := 0.0
	for i, obs := range g.Observations {
		if err := obs.Validate(i); err != nil {
			return ThermalSeries{}, err
		}
		inc := Increment(obs.Tmin, obs.Tmax, tb)
		sum += inc
		series.Increments[i] = inc
		series.Cumulative[i] = sum
	}
	return series, nil
}
