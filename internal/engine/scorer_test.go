package engine

import (
	"math"
	"testing"

	"github.com/watchstack/watchstack-anomaly/internal/models"
)

func TestScoreStandardizedDeviation(t *testing.T) {
	result := Score(models.MetricAvgResponseTime1Min, 15.40, 6.28, 2.1509433962264150)

	want := math.Abs(15.40-6.28) / 2.1509433962264150
	if result.Deviation != want {
		t.Fatalf("deviation = %v, want %v", result.Deviation, want)
	}
	if result.Deviation < 0 {
		t.Fatalf("deviation must be non-negative")
	}
	if math.Abs(result.Deviation-4.24) > 1e-9 {
		t.Fatalf("deviation = %v, want ~4.24", result.Deviation)
	}
	if math.Abs(result.PercentageChange-145.22292993630573) > 1e-9 {
		t.Fatalf("percentage change = %v, want ~145.22", result.PercentageChange)
	}
	if result.Direction() != models.DirectionHigh {
		t.Fatalf("expected high direction")
	}
}

func TestScoreNegativeChange(t *testing.T) {
	result := Score(models.MetricAvgResponseTime1Min, 0, 161.39, 19.851168511685117)

	if math.Abs(result.Deviation-8.13) > 1e-9 {
		t.Fatalf("deviation = %v, want ~8.13", result.Deviation)
	}
	if result.PercentageChange != -100.0 {
		t.Fatalf("percentage change = %v, want -100", result.PercentageChange)
	}
	if result.Direction() != models.DirectionLow {
		t.Fatalf("expected low direction")
	}
}

func TestScoreFlatBaseline(t *testing.T) {
	if got := Score("m", 5, 5, 0); got.Deviation != 0 {
		t.Fatalf("flat baseline with matching sample must score 0, got %v", got.Deviation)
	}
	got := Score("m", 6, 5, 0)
	if got.Deviation != DeviationSentinel {
		t.Fatalf("flat baseline with moved sample must hit the sentinel, got %v", got.Deviation)
	}
	if math.IsNaN(got.Deviation) || math.IsInf(got.Deviation, 0) {
		t.Fatalf("deviation must stay finite")
	}
}

func TestScoreZeroMean(t *testing.T) {
	if got := Score("m", 0, 0, 0); got.PercentageChange != 0 {
		t.Fatalf("zero baseline and zero sample must yield 0%%, got %v", got.PercentageChange)
	}

	up := Score("m", 3.5, 0, 1)
	if up.PercentageChange != PercentSentinel {
		t.Fatalf("zero baseline with positive sample: got %v, want %v", up.PercentageChange, PercentSentinel)
	}
	down := Score("m", -3.5, 0, 1)
	if down.PercentageChange != -PercentSentinel {
		t.Fatalf("zero baseline with negative sample: got %v, want %v", down.PercentageChange, -PercentSentinel)
	}
	if math.IsNaN(up.PercentageChange) || math.IsInf(up.PercentageChange, 0) {
		t.Fatalf("percentage change must stay finite")
	}
}

func TestScoreHugePercentagesAreNotClamped(t *testing.T) {
	// A near-zero baseline legitimately produces changes in the millions.
	result := Score(models.MetricRequestsPerSecond, 9000, 0.0004, 0.0001)
	if result.PercentageChange < 1e6 {
		t.Fatalf("expected unclamped percentage, got %v", result.PercentageChange)
	}
}

func TestScoreRoundTrip(t *testing.T) {
	// Recomputing from the stored (current, baseline, stddev) inputs must
	// reproduce the figures exactly.
	first := Score(models.MetricRequestsPerSecond, 9.33, 0.90, 0.11852945312)
	second := Score(models.MetricRequestsPerSecond, first.CurrentValue, first.BaselineValue, 0.11852945312)

	if relDiff(first.Deviation, second.Deviation) > 1e-9 {
		t.Fatalf("deviation not reproducible: %v vs %v", first.Deviation, second.Deviation)
	}
	if relDiff(first.PercentageChange, second.PercentageChange) > 1e-9 {
		t.Fatalf("percentage change not reproducible: %v vs %v", first.PercentageChange, second.PercentageChange)
	}
}

func relDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
