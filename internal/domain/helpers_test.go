package domain

import (
	"math"
	"time"
)

var testStart = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// obs builds a dated observation for day offset d.
func obs(d int, tmin, tmax, nf float64) Observation {
	return Observation{Date: testStart.AddDate(0, 0, d), Tmin: tmin, Tmax: tmax, NF: nf}
}

// scenarioGroup is the four-day example: increments 5,6,7,8 at Tb = 10.
func scenarioGroup() []Observation {
	return []Observation{
		obs(0, 10, 20, 1),
		obs(1, 12, 22, 2),
		obs(2, 14, 24, 3),
		obs(3, 16, 26, 4),
	}
}

// syntheticGroup generates a season whose leaf count is an exact linear
// function of thermal time at trueTb. Temperatures oscillate so that some days
// fall below trueTb.
func syntheticGroup(days int, trueTb, slope, intercept, phase float64) []Observation {
	out := make([]Observation, 0, days)
	sta := 0.0
	for i := 0; i < days; i++ {
		tmin := 10 + 6*math.Sin(float64(i)*0.3+phase)
		tmax := tmin + 10
		sta += Increment(tmin, tmax, trueTb)
		out = append(out, obs(i, tmin, tmax, intercept+slope*sta))
	}
	return out
}

func mustStore(input map[string][]Observation) *Store {
	s, _, err := NewStore(input)
	if err != nil {
		panic(err)
	}
	return s
}
