// Package domain implements the thermal-time calibration engine that estimates
// a crop's base temperature (Tb).
//
// # Method
//
// For every day the mean temperature is Tmean = (Tmin + Tmax) / 2 and the
// daily thermal increment (degree-days) is
//
//	STd = max(0, Tmean - Tb)
//
// Days colder than Tb contribute nothing; there is no cooling debt. The
// accumulated thermal time STa is the running sum of STd within a group, and
// restarts at zero for every group (sowing date or cultivar).
//
// For a candidate Tb the development counter NF (leaf number) is regressed on
// STa by ordinary least squares:
//
//	NF = a × STa + b
//
// The calibrated Tb is the grid candidate with the highest R² (or lowest MSE
// when so configured). Among equal scores the smallest Tb wins.
//
// # Pooling
//
// In pooled mode (the default) the (STa, NF) points of all groups are fit by
// one line, which assumes a common leaf emission rate. In per-group mode each
// group gets its own line and the candidate score is the mean across groups.
//
// # Record policy
//
// Records with a missing or non-numeric Tmin or Tmax, an unparseable date, an
// infinite or negative NF, or Tmin > Tmax are dropped by [NewStore] and
// reported as [DataError]. A record whose NF is missing is kept: it adds
// thermal time to its group but is left out of the regression. A group with
// fewer than two records carrying NF is excluded as an
// [InsufficientDataError].
//
// # Interpretation
//
// Thresholds used by [ClassifyFit], [ClassifyTb] and [ClassifyRate]:
//
//	R²:    >=0.90 excellent | >=0.75 good | >=0.50 moderate | <0.50 weak
//	Tb:    <8 °C low | 8–12 °C moderate | >12 °C high
//	slope: >0.01 fast | >0.005 moderate | otherwise slow (leaves per °C·day)
package domain
