// Package history keeps a bounded in-memory record of emitted alerts and
// mines simple frequency aggregates per metric. It backs the operational API
// when no Redis store is configured.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/watchstack/watchstack-anomaly/internal/models"
)

// MetricPattern aggregates alert activity for one metric.
type MetricPattern struct {
	MetricName    string    `json:"metric_name"`
	AlertCount    int       `json:"alert_count"`
	WarningCount  int       `json:"warning_count"`
	CriticalCount int       `json:"critical_count"`
	MaxDeviation  float64   `json:"max_deviation"`
	LastSeen      time.Time `json:"last_seen"`
	Prevalence    float64   `json:"prevalence"`
}

// Store is a ring buffer of recent alert records with per-metric aggregates.
// It implements engine.AlertSink.
type Store struct {
	mu      sync.RWMutex
	maxSize int
	records []models.AlertRecord
	total   int
	metrics map[string]*metricAggregate
}

type metricAggregate struct {
	count        int
	warnings     int
	criticals    int
	maxDeviation float64
	lastSeen     time.Time
}

// NewStore creates a Store retaining up to maxSize records.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Store{
		maxSize: maxSize,
		metrics: make(map[string]*metricAggregate),
	}
}

// Persist records an emitted alert. Never fails; the in-memory store is the
// always-available sink of last resort.
func (s *Store) Persist(_ context.Context, record models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	if len(s.records) > s.maxSize {
		copy(s.records[0:], s.records[1:])
		s.records = s.records[:s.maxSize]
	}
	s.total++

	agg := s.metrics[record.StructuredData.Anomaly.MetricName]
	if agg == nil {
		agg = &metricAggregate{}
		s.metrics[record.StructuredData.Anomaly.MetricName] = agg
	}
	agg.count++
	switch record.Severity {
	case models.SeverityCritical:
		agg.criticals++
	case models.SeverityWarning:
		agg.warnings++
	}
	if dev := record.StructuredData.Anomaly.Deviation; dev > agg.maxDeviation {
		agg.maxDeviation = dev
	}
	if record.Timestamp.After(agg.lastSeen) {
		agg.lastSeen = record.Timestamp
	}
	return nil
}

// Recent returns up to count records, newest first.
func (s *Store) Recent(count int) []models.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.records) {
		count = len(s.records)
	}
	out := make([]models.AlertRecord, 0, count)
	for i := len(s.records) - 1; i >= len(s.records)-count; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// Patterns returns per-metric aggregates ordered by alert count, busiest
// first, ties broken by metric name.
func (s *Store) Patterns() []MetricPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patterns := make([]MetricPattern, 0, len(s.metrics))
	for name, agg := range s.metrics {
		p := MetricPattern{
			MetricName:    name,
			AlertCount:    agg.count,
			WarningCount:  agg.warnings,
			CriticalCount: agg.criticals,
			MaxDeviation:  agg.maxDeviation,
			LastSeen:      agg.lastSeen,
		}
		if s.total > 0 {
			p.Prevalence = float64(agg.count) / float64(s.total)
		}
		patterns = append(patterns, p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].AlertCount != patterns[j].AlertCount {
			return patterns[i].AlertCount > patterns[j].AlertCount
		}
		return patterns[i].MetricName < patterns[j].MetricName
	})
	return patterns
}

// Total reports how many alerts were ever recorded, including evicted ones.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
