package engine

import (
	"math"

	"github.com/watchstack/watchstack-anomaly/internal/models"
)

// Sentinels substitute for divisions that would otherwise be degenerate.
// They are large but finite so downstream consumers never see NaN or Inf,
// and they are not clamps: a legitimately huge percentage change against a
// near-zero baseline passes through untouched.
const (
	// DeviationSentinel replaces |current-mean|/stddev when the baseline is
	// perfectly flat but the sample moved off it.
	DeviationSentinel = 1e6
	// PercentSentinel replaces the relative change when the baseline mean is
	// exactly zero and the sample is not.
	PercentSentinel = 1e6
)

// Score compares a sample against its baseline. Pure function, no side
// effects.
//
// Deviation is the standardized distance |current-mean|/stddev. On a flat
// baseline (stddev == 0) it is zero when the sample matches the mean, which
// prevents false positives, and DeviationSentinel otherwise.
//
// Percentage change is (current-mean)/mean*100, signed. A zero mean with a
// zero sample yields 0; a zero mean with a non-zero sample yields the signed
// PercentSentinel.
func Score(metricName string, current, mean, stddev float64) models.DeviationResult {
	result := models.DeviationResult{
		MetricName:    metricName,
		CurrentValue:  current,
		BaselineValue: mean,
	}

	switch {
	case stddev > 0:
		result.Deviation = math.Abs(current-mean) / stddev
	case current != mean:
		result.Deviation = DeviationSentinel
	}

	switch {
	case mean != 0:
		result.PercentageChange = (current - mean) / mean * 100
	case current == 0:
		result.PercentageChange = 0
	default:
		result.PercentageChange = math.Copysign(PercentSentinel, current)
	}

	return result
}
