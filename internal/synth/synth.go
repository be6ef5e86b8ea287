// Package synth generates observation datasets whose development counter is
// driven by a known base temperature, for demos and recovery tests.
package synth

import (
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/couchcryptid/tb-calibration/internal/domain"
)

// Params describes a synthetic experiment.
type Params struct {
	Groups    int
	Days      int
	Tb        float64 // base temperature NF is generated from
	Slope     float64 // leaves per degree-day
	Intercept float64
	Noise     float64 // standard deviation of the NF noise
	Start     time.Time
	// SowingGap separates the first day of consecutive groups.
	SowingGap time.Duration
	Seed      uint64
}

// DefaultParams returns a three-sowing experiment at Tb 10 °C.
func DefaultParams() Params {
	return Params{
		Groups:    3,
		Days:      60,
		Tb:        10,
		Slope:     0.012,
		Intercept: 0.5,
		Noise:     0.05,
		Start:     time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC),
		SowingGap: 20 * 24 * time.Hour,
		Seed:      1,
	}
}

// Generate builds the dataset. Groups are named E1, E2, ... Temperatures
// follow a seasonal wave with daily jitter, so Tmean crosses Tb on some days.
// The same Params always produce the same dataset.
func Generate(p Params) (map[string][]domain.Observation, error) {
	if p.Groups < 1 || p.Days < 2 {
		return nil, errors.New("synth: need at least one group and two days")
	}
	if p.Noise < 0 {
		return nil, errors.New("synth: noise must not be negative")
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	out := make(map[string][]domain.Observation, p.Groups)
	for g := range p.Groups {
		name := "E" + strconv.Itoa(g+1)
		first := p.Start.Add(time.Duration(g) * p.SowingGap)
		obs := make([]domain.Observation, p.Days)

		sta := 0.0
		for d := range p.Days {
			date := first.AddDate(0, 0, d)
			season := 2 * math.Pi * float64(date.YearDay()) / 365
			tmin := 11 + 5*math.Sin(season) + rng.NormFloat64()*1.5
			tmax := tmin + 8 + rng.Float64()*6

			sta += domain.Increment(tmin, tmax, p.Tb)
			nf := p.Intercept + p.Slope*sta + rng.NormFloat64()*p.Noise
			obs[d] = domain.Observation{
				Date:  date,
				Tmin:  round2(tmin),
				Tmax:  round2(tmax),
				NF:    math.Max(0, round2(nf)),
				Group: name,
			}
		}
		out[name] = obs
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
