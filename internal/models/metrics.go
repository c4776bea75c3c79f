package models

import "time"

// Metric names sampled from the instrumented service on every detection tick.
const (
	MetricActiveRequests        = "active_requests"
	MetricCompletedRequests1Min = "completed_requests_1min"
	MetricErrorRate1Min         = "error_rate_1min"
	MetricAvgResponseTime1Min   = "avg_response_time_1min"
	MetricRequestsPerSecond     = "requests_per_second"
	MetricCacheHitRate          = "cache_hit_rate"
	MetricQueueDepth            = "queue_depth"
)

// TrackedMetrics returns the metric names evaluated per cycle, in a fixed order.
func TrackedMetrics() []string {
	return []string{
		MetricActiveRequests,
		MetricCompletedRequests1Min,
		MetricErrorRate1Min,
		MetricAvgResponseTime1Min,
		MetricRequestsPerSecond,
		MetricCacheHitRate,
		MetricQueueDepth,
	}
}

// MetricSample is a single observation of one metric.
type MetricSample struct {
	MetricName string
	Value      float64
	ObservedAt time.Time
}

// SystemStateSnapshot captures request-level counters at alert time.
type SystemStateSnapshot struct {
	ActiveRequests        int     `json:"active_requests"`
	CompletedRequests1Min int     `json:"completed_requests_1min"`
	ErrorRate1Min         float64 `json:"error_rate_1min"`
	AvgResponseTime1Min   float64 `json:"avg_response_time_1min"`
}

// EfficiencySnapshot captures throughput and cache counters at alert time.
type EfficiencySnapshot struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	QueueDepth        int     `json:"queue_depth"`
}

// CounterSet is one atomic read of all tracked counters.
type CounterSet struct {
	ObservedAt  time.Time
	SystemState SystemStateSnapshot
	Efficiency  EfficiencySnapshot
}

// Samples flattens the counter set into per-metric samples sharing one
// observation time, in the TrackedMetrics order.
func (c CounterSet) Samples() []MetricSample {
	names := TrackedMetrics()
	samples := make([]MetricSample, 0, len(names))
	for _, name := range names {
		samples = append(samples, MetricSample{
			MetricName: name,
			Value:      c.valueOf(name),
			ObservedAt: c.ObservedAt,
		})
	}
	return samples
}

func (c CounterSet) valueOf(name string) float64 {
	switch name {
	case MetricActiveRequests:
		return float64(c.SystemState.ActiveRequests)
	case MetricCompletedRequests1Min:
		return float64(c.SystemState.CompletedRequests1Min)
	case MetricErrorRate1Min:
		return c.SystemState.ErrorRate1Min
	case MetricAvgResponseTime1Min:
		return c.SystemState.AvgResponseTime1Min
	case MetricRequestsPerSecond:
		return c.Efficiency.RequestsPerSecond
	case MetricCacheHitRate:
		return c.Efficiency.CacheHitRate
	case MetricQueueDepth:
		return float64(c.Efficiency.QueueDepth)
	}
	return 0
}
