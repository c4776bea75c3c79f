package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Severity captures alert impact tiers.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Direction describes which side of the baseline a sample fell on.
type Direction string

const (
	DirectionHigh Direction = "high"
	DirectionLow  Direction = "low"
)

// ResolutionStatus tracks the operator-facing lifecycle of an alert.
// The detection core only ever produces StatusOpen; later transitions are
// owned by external tooling.
type ResolutionStatus string

const (
	StatusOpen         ResolutionStatus = "open"
	StatusAcknowledged ResolutionStatus = "acknowledged"
	StatusResolved     ResolutionStatus = "resolved"
)

// DeviationResult compares one sample against its rolling baseline.
// Transient: created and consumed within a single detection cycle.
type DeviationResult struct {
	MetricName       string
	CurrentValue     float64
	BaselineValue    float64
	Deviation        float64
	PercentageChange float64
}

// Direction reports whether the sample sits above or below the baseline.
func (d DeviationResult) Direction() Direction {
	if d.CurrentValue < d.BaselineValue {
		return DirectionLow
	}
	return DirectionHigh
}

// Anomaly is a classified deviation. Immutable once built.
type Anomaly struct {
	Severity         Severity `json:"severity"`
	MetricName       string   `json:"metric_name"`
	CurrentValue     float64  `json:"current_value"`
	BaselineValue    float64  `json:"baseline_value"`
	Deviation        float64  `json:"deviation"`
	PercentageChange float64  `json:"percentage_change"`
}

// ResourceSnapshot carries host resource telemetry captured at alert time.
type ResourceSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ResourceUsage is a tagged variant: either a real snapshot or an explicit
// unavailability marker. Telemetry failures never block an alert.
type ResourceUsage struct {
	snapshot *ResourceSnapshot
	err      string
}

// ResourceUsageAvailable wraps a live snapshot.
func ResourceUsageAvailable(s ResourceSnapshot) ResourceUsage {
	return ResourceUsage{snapshot: &s}
}

// ResourceUsageUnavailable records why telemetry could not be captured.
func ResourceUsageUnavailable(reason string) ResourceUsage {
	if reason == "" {
		reason = "resource telemetry unavailable"
	}
	return ResourceUsage{err: reason}
}

// Snapshot returns the telemetry and whether it was available.
func (r ResourceUsage) Snapshot() (ResourceSnapshot, bool) {
	if r.snapshot == nil {
		return ResourceSnapshot{}, false
	}
	return *r.snapshot, true
}

// Err returns the unavailability reason, empty when telemetry was captured.
func (r ResourceUsage) Err() string { return r.err }

// MarshalJSON renders either the snapshot fields or {"error": reason}.
func (r ResourceUsage) MarshalJSON() ([]byte, error) {
	if r.snapshot != nil {
		return json.Marshal(*r.snapshot)
	}
	return json.Marshal(map[string]string{"error": r.err})
}

// UnmarshalJSON restores the variant from its serialized form.
func (r *ResourceUsage) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Error != nil {
		*r = ResourceUsage{err: *probe.Error}
		return nil
	}
	var snap ResourceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	*r = ResourceUsage{snapshot: &snap}
	return nil
}

// StructuredData is the machine-readable payload nested inside an AlertRecord.
type StructuredData struct {
	Anomaly       Anomaly             `json:"anomaly"`
	SystemState   SystemStateSnapshot `json:"system_state"`
	Efficiency    EfficiencySnapshot  `json:"efficiency"`
	ResourceUsage ResourceUsage       `json:"resource_usage"`
	Metadata      map[string]string   `json:"metadata"`
}

// AlertRecord is the terminal artifact handed to the persistence collaborator.
// Never mutated after creation; only external tooling may later flip
// ResolutionStatus.
type AlertRecord struct {
	Timestamp        time.Time        `json:"timestamp"`
	AnomalyID        string           `json:"anomaly_id"`
	Category         string           `json:"category"`
	Severity         Severity         `json:"severity"`
	Title            string           `json:"title"`
	SuggestedActions []string         `json:"suggested_actions"`
	ResolutionStatus ResolutionStatus `json:"resolution_status"`
	StructuredData   StructuredData   `json:"structured_data"`
}

// EpochSeconds formats t as float seconds since epoch with sub-second
// precision preserved verbatim. Used for anomaly IDs, where the fractional
// part guarantees uniqueness across rapid successive alerts on one metric.
func EpochSeconds(t time.Time) string {
	// Summing whole seconds and the fractional part separately keeps the
	// sub-second digits exact; converting UnixNano directly to float64 does
	// not survive the 53-bit mantissa.
	seconds := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// AnomalyID derives the globally unique alert identifier from the metric name
// and emission time.
func AnomalyID(metricName string, t time.Time) string {
	return fmt.Sprintf("%s_%s", metricName, EpochSeconds(t))
}
