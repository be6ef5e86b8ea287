package domain

import (
	"fmt"
	"math"
	"strings"
)

// FitQuality labels how well thermal time explains the development counter.
type FitQuality string

const (
	FitExcellent FitQuality = "excellent"
	FitGood      FitQuality = "good"
	FitModerate  FitQuality = "moderate"
	FitWeak      FitQuality = "weak"
)

// TbBand labels a base temperature.
type TbBand string

const (
	TbLow      TbBand = "low"
	TbModerate TbBand = "moderate"
	TbHigh     TbBand = "high"
)

// DevelopmentRate labels the leaf emission rate per degree-day.
type DevelopmentRate string

const (
	RateFast     DevelopmentRate = "fast"
	RateModerate DevelopmentRate = "moderate"
	RateSlow     DevelopmentRate = "slow"
)

// Interpretation is the qualitative reading of a calibration result.
type Interpretation struct {
	Fit      FitQuality      `json:"fit"`
	TbBand   TbBand          `json:"tb_band"`
	Rate     DevelopmentRate `json:"development_rate"`
	Unimodal bool            `json:"unimodal"`
	Summary  string          `json:"summary"`
}

// ClassifyFit maps R² onto a fit label:
//   - excellent: R² >= 0.90
//   - good:      0.75 <= R² < 0.90
//   - moderate:  0.50 <= R² < 0.75
//   - weak:      R² < 0.50
func ClassifyFit(r2 float64) FitQuality {
	switch {
	case r2 >= 0.90:
		return FitExcellent
	case r2 >= 0.75:
		return FitGood
	case r2 >= 0.50:
		return FitModerate
	default:
		return FitWeak
	}
}

// ClassifyTb maps a base temperature in °C onto a band: low below 8,
// moderate from 8 to 12 inclusive, high above 12.
func ClassifyTb(tb float64) TbBand {
	switch {
	case tb < 8:
		return TbLow
	case tb <= 12:
		return TbModerate
	default:
		return TbHigh
	}
}

// ClassifyRate maps the regression slope (leaves per degree-day) onto a
// development rate by magnitude: fast above 0.01, moderate above 0.005,
// slow otherwise.
func ClassifyRate(slope float64) DevelopmentRate {
	s := math.Abs(slope)
	switch {
	case s > 0.01:
		return RateFast
	case s > 0.005:
		return RateModerate
	default:
		return RateSlow
	}
}

// IsUnimodal reports whether the valid points of a scan curve rise and then
// fall at most once. Invalid candidates are skipped.
func IsUnimodal(curve []ScanPoint) bool {
	const eps = 1e-12
	falling := false
	prev := math.NaN()
	for _, p := range curve {
		if !p.Valid {
			continue
		}
		if !math.IsNaN(prev) {
			switch {
			case p.R2 < prev-eps:
				falling = true
			case p.R2 > prev+eps && falling:
				return false
			}
		}
		prev = p.R2
	}
	return true
}

var fitPhrases = map[FitQuality]string{
	FitExcellent: "thermal time explains nearly all of the variation in leaf number",
	FitGood:      "thermal time explains most of the variation in leaf number",
	FitModerate:  "other factors besides temperature may be influencing development",
	FitWeak:      "temperature alone does not explain development well",
}

var tbPhrases = map[TbBand]string{
	TbLow:      "the crop keeps developing at fairly cool temperatures",
	TbModerate: "a typical threshold for warm-season vegetables",
	TbHigh:     "the cultivar needs warmer conditions to develop",
}

var ratePhrases = map[DevelopmentRate]string{
	RateFast:     "leaves are emitted quickly as heat accumulates",
	RateModerate: "leaf emission follows heat accumulation at a normal pace",
	RateSlow:     "leaf emission is slow or limited by other factors",
}

// Interpret classifies the best fit of res and renders a short summary.
func Interpret(res OptimizationResult) Interpretation {
	fit := res.BestRegression
	in := Interpretation{
		Fit:      ClassifyFit(fit.R2),
		TbBand:   ClassifyTb(res.BestTb),
		Rate:     ClassifyRate(fit.Slope),
		Unimodal: IsUnimodal(res.ScanCurve),
	}

	sentences := []string{
		fmt.Sprintf("Fit is %s (R² = %.4f): %s.", in.Fit, fit.R2, fitPhrases[in.Fit]),
		fmt.Sprintf("Base temperature %.2f °C is %s: %s.", res.BestTb, in.TbBand, tbPhrases[in.TbBand]),
		fmt.Sprintf("Development rate is %s (%.6f leaves per degree-day): %s.", in.Rate, fit.Slope, ratePhrases[in.Rate]),
	}
	if !in.Unimodal {
		sentences = append(sentences, "The R² curve has more than one peak; check the Tb range and the data.")
	}
	in.Summary = strings.Join(sentences, " ")
	return in
}
