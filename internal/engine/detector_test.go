package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/watchstack/watchstack-anomaly/internal/baseline"
	"github.com/watchstack/watchstack-anomaly/internal/models"
)

type fakeProvider struct {
	counters     []models.CounterSet
	calls        int
	countersErr  error
	resource     models.ResourceSnapshot
	resourceErr  error
	resourceHits int
}

func (f *fakeProvider) FetchCounters(ctx context.Context) (models.CounterSet, error) {
	if f.countersErr != nil {
		return models.CounterSet{}, f.countersErr
	}
	idx := f.calls
	if idx >= len(f.counters) {
		idx = len(f.counters) - 1
	}
	f.calls++
	return f.counters[idx], nil
}

func (f *fakeProvider) FetchResourceUsage(ctx context.Context) (models.ResourceSnapshot, error) {
	f.resourceHits++
	if f.resourceErr != nil {
		return models.ResourceSnapshot{}, f.resourceErr
	}
	return f.resource, nil
}

// steadyCounters returns a counter set with mild jitter so baselines develop
// a non-zero spread.
func steadyCounters(i int) models.CounterSet {
	jitter := float64(i%2) * 0.4
	return models.CounterSet{
		ObservedAt: time.Unix(int64(1_700_000_000+60*i), 0),
		SystemState: models.SystemStateSnapshot{
			ActiveRequests:        10 + i%2,
			CompletedRequests1Min: 480 + i%2,
			ErrorRate1Min:         0.02 + jitter/100,
			AvgResponseTime1Min:   6.0 + jitter,
		},
		Efficiency: models.EfficiencySnapshot{
			RequestsPerSecond: 8.0 + jitter,
			CacheHitRate:      0.90 + jitter/100,
			QueueDepth:        3 + i%2,
		},
	}
}

func newTestDetector(provider CountersProvider, sink AlertSink) *Detector {
	tracker := baseline.NewTracker(50)
	classifier := NewClassifier(DefaultThresholds(), nil, nil)
	emitter := NewEmitter(nil, newMemoryProvider(), time.Hour, "test", sink)
	return NewDetector(nil, provider, tracker, classifier, emitter, time.Minute, 5*time.Second)
}

func TestRunCycleQuietBaselineEmitsNothing(t *testing.T) {
	counters := make([]models.CounterSet, 0, 20)
	for i := 0; i < 20; i++ {
		counters = append(counters, steadyCounters(i))
	}
	provider := &fakeProvider{counters: counters}
	sink := &recordingSink{}
	detector := newTestDetector(provider, sink)

	for i := 0; i < 20; i++ {
		emitted, err := detector.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if emitted != 0 {
			t.Fatalf("steady traffic must not alert, cycle %d emitted %d", i, emitted)
		}
	}
	if provider.resourceHits != 0 {
		t.Fatalf("resource telemetry should only be fetched when alerting")
	}
}

func TestRunCycleDetectsSpike(t *testing.T) {
	counters := make([]models.CounterSet, 0, 21)
	for i := 0; i < 20; i++ {
		counters = append(counters, steadyCounters(i))
	}
	spike := steadyCounters(20)
	spike.SystemState.AvgResponseTime1Min = 90.0
	counters = append(counters, spike)

	provider := &fakeProvider{
		counters: counters,
		resource: models.ResourceSnapshot{CPUPercent: 55, MemoryMB: 900, MemoryPercent: 44},
	}
	sink := &recordingSink{}
	detector := newTestDetector(provider, sink)

	for i := 0; i < 20; i++ {
		if _, err := detector.RunCycle(context.Background()); err != nil {
			t.Fatalf("warmup cycle %d: %v", i, err)
		}
	}
	emitted, err := detector.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("spike cycle: %v", err)
	}
	if emitted != 1 {
		t.Fatalf("expected exactly the response-time alert, got %d", emitted)
	}

	record := sink.last()
	anomaly := record.StructuredData.Anomaly
	if anomaly.MetricName != models.MetricAvgResponseTime1Min {
		t.Fatalf("alert on wrong metric: %s", anomaly.MetricName)
	}
	if anomaly.Severity != models.SeverityCritical {
		t.Fatalf("a 15x spike should be critical, got %s", anomaly.Severity)
	}
	if record.StructuredData.SystemState.AvgResponseTime1Min != 90.0 {
		t.Fatalf("system state snapshot must reflect alert-time counters")
	}
	if snap, ok := record.StructuredData.ResourceUsage.Snapshot(); !ok || snap.CPUPercent != 55 {
		t.Fatalf("expected live resource snapshot, got %+v ok=%v", snap, ok)
	}
	if provider.resourceHits != 1 {
		t.Fatalf("resource telemetry fetched %d times, want 1", provider.resourceHits)
	}
}

func TestRunCycleSamplingFailureSkips(t *testing.T) {
	provider := &fakeProvider{countersErr: errors.New("connection refused")}
	sink := &recordingSink{}
	detector := newTestDetector(provider, sink)

	emitted, err := detector.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("expected sampling error")
	}
	if emitted != 0 || sink.count() != 0 {
		t.Fatalf("a skipped cycle must not emit")
	}
}

func TestRunCycleDegradedResourceTelemetry(t *testing.T) {
	counters := make([]models.CounterSet, 0, 21)
	for i := 0; i < 20; i++ {
		counters = append(counters, steadyCounters(i))
	}
	spike := steadyCounters(20)
	spike.SystemState.ErrorRate1Min = 0.9
	counters = append(counters, spike)

	provider := &fakeProvider{
		counters:    counters,
		resourceErr: errors.New("resource monitor unreachable"),
	}
	sink := &recordingSink{}
	detector := newTestDetector(provider, sink)

	for i := 0; i < 20; i++ {
		if _, err := detector.RunCycle(context.Background()); err != nil {
			t.Fatalf("warmup cycle %d: %v", i, err)
		}
	}
	emitted, err := detector.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("spike cycle: %v", err)
	}
	if emitted != 1 {
		t.Fatalf("alert must still be emitted under degraded telemetry, got %d", emitted)
	}
	if sink.last().StructuredData.ResourceUsage.Err() == "" {
		t.Fatalf("expected an explicit unavailability marker")
	}
}

// blockingProvider parks FetchCounters on its context so tests can observe
// how an in-flight sample ends. Only the first cycle is reported; later
// cycles fall through without blocking.
type blockingProvider struct {
	started   chan struct{}
	sampleErr chan error
}

func (p *blockingProvider) FetchCounters(ctx context.Context) (models.CounterSet, error) {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	select {
	case p.sampleErr <- ctx.Err():
	default:
	}
	return models.CounterSet{}, ctx.Err()
}

func (p *blockingProvider) FetchResourceUsage(context.Context) (models.ResourceSnapshot, error) {
	return models.ResourceSnapshot{}, nil
}

func TestRunFinishesInFlightCycleOnShutdown(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{}, 1), sampleErr: make(chan error, 1)}
	sink := &recordingSink{}
	tracker := baseline.NewTracker(50)
	classifier := NewClassifier(DefaultThresholds(), nil, nil)
	emitter := NewEmitter(nil, newMemoryProvider(), time.Hour, "test", sink)
	detector := NewDetector(nil, provider, tracker, classifier, emitter, 40*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		detector.Run(ctx)
		close(done)
	}()

	// Cancel while the first sample is blocked mid-flight.
	<-provider.started
	cancel()

	select {
	case err := <-provider.sampleErr:
		// The sample must run to its own timeout, not die with the run context.
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("in-flight sample ended with %v, want deadline exceeded", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("in-flight sample never finished")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("detector did not stop after the cycle finished")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	provider := &fakeProvider{counters: []models.CounterSet{steadyCounters(0)}}
	sink := &recordingSink{}
	tracker := baseline.NewTracker(50)
	classifier := NewClassifier(DefaultThresholds(), nil, nil)
	emitter := NewEmitter(nil, newMemoryProvider(), time.Hour, "test", sink)
	detector := NewDetector(nil, provider, tracker, classifier, emitter, 5*time.Millisecond, 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		detector.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("detector did not stop after cancellation")
	}
}
