package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels cycles that completed evaluation.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles skipped because sampling failed.
	OutcomeError = "error"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchstack_anomaly",
			Name:      "cycles_total",
			Help:      "Total number of detection cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "watchstack_anomaly",
			Name:      "cycle_seconds",
			Help:      "Detection cycle latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchstack_anomaly",
			Name:      "alerts_total",
			Help:      "Alerts emitted, partitioned by metric and severity.",
		},
		[]string{"metric", "severity"},
	)

	samplingFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchstack_anomaly",
			Name:      "sampling_failures_total",
			Help:      "Cycles skipped because the counters provider was unreachable.",
		},
	)
)

// Register attaches the detector's collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		alertsTotal,
		samplingFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records a detection cycle's duration and outcome.
func ObserveCycle(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	cyclesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// IncAlert counts an emitted alert.
func IncAlert(metric, severity string) {
	alertsTotal.WithLabelValues(metric, severity).Inc()
}

// IncSamplingFailure counts a skipped cycle.
func IncSamplingFailure() {
	samplingFailuresTotal.Inc()
}
