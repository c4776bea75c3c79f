package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEpochSecondsKeepsSubSecondPrecision(t *testing.T) {
	ts := time.Unix(1_700_000_000, 250_000_000)
	if got := EpochSeconds(ts); got != "1700000000.25" {
		t.Fatalf("EpochSeconds = %q", got)
	}
	if got := EpochSeconds(time.Unix(1_700_000_000, 0)); got != "1700000000" {
		t.Fatalf("whole seconds should have no fraction, got %q", got)
	}
}

func TestAnomalyIDUniquePerTimestamp(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	a := AnomalyID(MetricQueueDepth, base)
	b := AnomalyID(MetricQueueDepth, base.Add(time.Microsecond))
	if a == b {
		t.Fatalf("ids must differ across timestamps: %q", a)
	}
	if !strings.HasPrefix(a, "queue_depth_") {
		t.Fatalf("id must embed the metric name: %q", a)
	}
	if AnomalyID(MetricCacheHitRate, base) == AnomalyID(MetricQueueDepth, base) {
		t.Fatalf("ids must differ across metrics")
	}
}

func TestDeviationResultDirection(t *testing.T) {
	high := DeviationResult{CurrentValue: 10, BaselineValue: 2}
	if high.Direction() != DirectionHigh {
		t.Fatalf("expected high direction")
	}
	low := DeviationResult{CurrentValue: 1, BaselineValue: 2}
	if low.Direction() != DirectionLow {
		t.Fatalf("expected low direction")
	}
}

func TestResourceUsageJSONRoundTrip(t *testing.T) {
	available := ResourceUsageAvailable(ResourceSnapshot{CPUPercent: 41.5, MemoryMB: 812, MemoryPercent: 39.7})
	data, err := json.Marshal(available)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "error") {
		t.Fatalf("available variant must not carry an error field: %s", data)
	}

	var decoded ResourceUsage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	snap, ok := decoded.Snapshot()
	if !ok || snap.CPUPercent != 41.5 {
		t.Fatalf("round-trip lost the snapshot: %+v ok=%v", snap, ok)
	}

	unavailable := ResourceUsageUnavailable("monitor offline")
	data, err = json.Marshal(unavailable)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"error":"monitor offline"}` {
		t.Fatalf("unexpected marker payload: %s", data)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Err() != "monitor offline" {
		t.Fatalf("round-trip lost the marker: %q", decoded.Err())
	}
	if _, ok := decoded.Snapshot(); ok {
		t.Fatalf("unavailable variant must not expose a snapshot")
	}
}

func TestAlertRecordJSONRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 250_000_000).UTC()
	record := AlertRecord{
		Timestamp:        now,
		AnomalyID:        AnomalyID(MetricAvgResponseTime1Min, now),
		Category:         "anomaly",
		Severity:         SeverityWarning,
		Title:            "Anomaly: avg_response_time_1min",
		SuggestedActions: []string{"Check upstream service and database latency"},
		ResolutionStatus: StatusOpen,
		StructuredData: StructuredData{
			Anomaly: Anomaly{
				Severity:         SeverityWarning,
				MetricName:       MetricAvgResponseTime1Min,
				CurrentValue:     15.40,
				BaselineValue:    6.28,
				Deviation:        4.24,
				PercentageChange: 145.22,
			},
			SystemState:   SystemStateSnapshot{ActiveRequests: 12, AvgResponseTime1Min: 15.40},
			Efficiency:    EfficiencySnapshot{RequestsPerSecond: 8.0, CacheHitRate: 0.91, QueueDepth: 3},
			ResourceUsage: ResourceUsageUnavailable("monitor offline"),
			Metadata:      map[string]string{"anomaly_id": "x", "source": "svc"},
		},
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded AlertRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.AnomalyID != record.AnomalyID || decoded.Severity != record.Severity {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
	if decoded.StructuredData.Anomaly.Deviation != 4.24 {
		t.Fatalf("deviation lost in round-trip")
	}
	if decoded.StructuredData.ResourceUsage.Err() != "monitor offline" {
		t.Fatalf("resource marker lost in round-trip")
	}
}
