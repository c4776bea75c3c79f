package baseline

import (
	"sort"
	"sync"
)

// DefaultWindowSize bounds the per-metric history when no size is configured.
const DefaultWindowSize = 50

// Snapshot is the rolling baseline of one metric at a point in time.
type Snapshot struct {
	MetricName  string  `json:"metric_name"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stddev"`
	SampleCount int     `json:"sample_count"`
	WindowSize  int     `json:"window_size"`
}

// Ready reports whether enough history exists to score deviations.
// With fewer than two samples the standard deviation is undefined and
// classification is suppressed.
func (s Snapshot) Ready() bool { return s.SampleCount >= 2 }

type metricState struct {
	mu     sync.Mutex
	window *rollingWindow
}

// Tracker maintains rolling baselines per metric name. The registry map is
// guarded separately from each metric's window, so unrelated metrics never
// serialize on a single lock while updates to one metric stay ordered.
type Tracker struct {
	mu         sync.RWMutex
	windowSize int
	metrics    map[string]*metricState
}

// NewTracker creates a Tracker whose per-metric windows hold windowSize
// samples. Non-positive sizes fall back to DefaultWindowSize.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{
		windowSize: windowSize,
		metrics:    make(map[string]*metricState),
	}
}

// Observe incorporates value into the metric's rolling window and returns the
// baseline as it stood immediately BEFORE incorporation. Comparing against
// the pre-update baseline keeps an outlier from partially erasing itself from
// its own deviation signal.
func (t *Tracker) Observe(metricName string, value float64) Snapshot {
	state := t.state(metricName)

	state.mu.Lock()
	defer state.mu.Unlock()

	snap := Snapshot{
		MetricName:  metricName,
		Mean:        state.window.mean(),
		StdDev:      state.window.stddev(),
		SampleCount: state.window.count,
		WindowSize:  t.windowSize,
	}
	state.window.add(value)
	return snap
}

// Current returns the present baseline for a metric without mutating it.
// The second result is false when the metric has never been observed.
func (t *Tracker) Current(metricName string) (Snapshot, bool) {
	t.mu.RLock()
	state, ok := t.metrics[metricName]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return Snapshot{
		MetricName:  metricName,
		Mean:        state.window.mean(),
		StdDev:      state.window.stddev(),
		SampleCount: state.window.count,
		WindowSize:  t.windowSize,
	}, true
}

// Snapshots returns the current baseline of every tracked metric, sorted by
// metric name for stable output.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.RLock()
	names := make([]string, 0, len(t.metrics))
	for name := range t.metrics {
		names = append(names, name)
	}
	t.mu.RUnlock()

	sort.Strings(names)
	snaps := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if snap, ok := t.Current(name); ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

func (t *Tracker) state(metricName string) *metricState {
	t.mu.RLock()
	state, ok := t.metrics[metricName]
	t.mu.RUnlock()
	if ok {
		return state
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok = t.metrics[metricName]; ok {
		return state
	}
	state = &metricState{window: newRollingWindow(t.windowSize)}
	t.metrics[metricName] = state
	return state
}
