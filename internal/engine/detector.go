package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/watchstack/watchstack-anomaly/internal/baseline"
	"github.com/watchstack/watchstack-anomaly/internal/metrics"
	"github.com/watchstack/watchstack-anomaly/internal/models"
	"github.com/watchstack/watchstack-anomaly/internal/utils"
)

// CountersProvider exposes the instrumented service's live counters and host
// resource telemetry.
type CountersProvider interface {
	FetchCounters(ctx context.Context) (models.CounterSet, error)
	FetchResourceUsage(ctx context.Context) (models.ResourceSnapshot, error)
}

// Detector drives the periodic detection cycle: sample, update baselines,
// score, classify, emit.
type Detector struct {
	logger        *slog.Logger
	provider      CountersProvider
	tracker       *baseline.Tracker
	classifier    *Classifier
	emitter       *Emitter
	interval      time.Duration
	sampleTimeout time.Duration
	latencies     *utils.LatencyTracker
}

// NewDetector wires the detection pipeline together.
func NewDetector(
	logger *slog.Logger,
	provider CountersProvider,
	tracker *baseline.Tracker,
	classifier *Classifier,
	emitter *Emitter,
	interval, sampleTimeout time.Duration,
) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if sampleTimeout <= 0 || sampleTimeout > interval {
		sampleTimeout = interval / 2
	}
	return &Detector{
		logger:        logger,
		provider:      provider,
		tracker:       tracker,
		classifier:    classifier,
		emitter:       emitter,
		interval:      interval,
		sampleTimeout: sampleTimeout,
		latencies:     utils.NewLatencyTracker(1024),
	}
}

// Run executes detection cycles on a fixed interval until ctx is cancelled.
// An in-flight cycle always finishes before Run returns: the cycle body runs
// on a context detached from cancellation, bounded only by the sampling
// timeout, so shutdown never aborts its sampling or emission mid-flight. A
// cycle that fails is not retried mid-interval, the next tick covers it.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("detector started", slog.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("detector stopped")
			return
		case <-ticker.C:
			if _, err := d.RunCycle(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn("detection cycle skipped", slog.Any("error", err))
			}
		}
	}
}

// RunCycle performs one detection pass over every tracked metric and returns
// the number of alerts emitted. Metrics are evaluated concurrently; each
// metric's baseline update stays ordered through the tracker's per-key lock.
func (d *Detector) RunCycle(ctx context.Context) (int, error) {
	start := time.Now()

	sampleCtx, cancel := context.WithTimeout(ctx, d.sampleTimeout)
	defer cancel()

	counters, err := d.provider.FetchCounters(sampleCtx)
	if err != nil {
		metrics.ObserveCycle(time.Since(start), metrics.OutcomeError)
		metrics.IncSamplingFailure()
		return 0, err
	}

	telemetry := &cycleTelemetry{detector: d}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int
	)
	for _, sample := range counters.Samples() {
		wg.Add(1)
		go func(sample models.MetricSample) {
			defer wg.Done()
			if d.evaluate(ctx, sample, counters, telemetry) {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}(sample)
	}
	wg.Wait()

	duration := time.Since(start)
	metrics.ObserveCycle(duration, metrics.OutcomeSuccess)
	d.latencies.Observe(duration)
	if count := d.latencies.Count(); count >= 20 && count%20 == 0 {
		d.logger.Info("detection cycle latency",
			slog.Duration("p95", d.latencies.Percentile(95)),
			slog.Int("cycles", count),
		)
	}
	return emitted, nil
}

// evaluate runs the sample -> baseline -> score -> classify -> emit flow for
// one metric. Reports whether an alert went out.
func (d *Detector) evaluate(ctx context.Context, sample models.MetricSample, counters models.CounterSet, telemetry *cycleTelemetry) bool {
	snap := d.tracker.Observe(sample.MetricName, sample.Value)
	result := Score(sample.MetricName, sample.Value, snap.Mean, snap.StdDev)

	anomaly, actions, ok := d.classifier.Classify(result, snap)
	if !ok {
		return false
	}

	record, err := d.emitter.Emit(ctx, anomaly, actions, counters.SystemState, counters.Efficiency, telemetry.resourceUsage(ctx))
	if err != nil {
		d.logger.Error("alert emission failed",
			slog.String("metric", sample.MetricName),
			slog.Any("error", err),
		)
		return false
	}

	metrics.IncAlert(record.StructuredData.Anomaly.MetricName, string(record.Severity))
	return true
}

// LatencyP95 exposes the rolling p95 cycle latency.
func (d *Detector) LatencyP95() time.Duration {
	return d.latencies.Percentile(95)
}

// cycleTelemetry fetches the resource snapshot at most once per cycle, at the
// moment the first alert needs it. Unreachable telemetry degrades into an
// explicit unavailability marker.
type cycleTelemetry struct {
	detector *Detector
	once     sync.Once
	usage    models.ResourceUsage
}

func (c *cycleTelemetry) resourceUsage(ctx context.Context) models.ResourceUsage {
	c.once.Do(func() {
		fetchCtx, cancel := context.WithTimeout(ctx, c.detector.sampleTimeout)
		defer cancel()

		snap, err := c.detector.provider.FetchResourceUsage(fetchCtx)
		if err != nil {
			c.detector.logger.Warn("resource telemetry unavailable", slog.Any("error", err))
			c.usage = models.ResourceUsageUnavailable(err.Error())
			return
		}
		c.usage = models.ResourceUsageAvailable(snap)
	})
	return c.usage
}
