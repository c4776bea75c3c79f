package baseline

import "math"

// rollingWindow keeps the most recent N samples in a ring buffer together
// with a running sum, so the mean is O(1) and the variance a single pass.
type rollingWindow struct {
	size   int
	values []float64
	index  int
	count  int
	sum    float64
}

func newRollingWindow(size int) *rollingWindow {
	if size < 2 {
		size = 2
	}
	return &rollingWindow{
		size:   size,
		values: make([]float64, size),
	}
}

func (w *rollingWindow) add(value float64) {
	if w.count < w.size {
		w.count++
	} else {
		w.sum -= w.values[w.index]
	}
	w.values[w.index] = value
	w.sum += value
	w.index = (w.index + 1) % w.size
}

func (w *rollingWindow) mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// stddev is the population standard deviation over the retained samples.
// Undefined below two samples, reported as zero.
func (w *rollingWindow) stddev() float64 {
	if w.count < 2 {
		return 0
	}
	mean := w.mean()
	variance := 0.0
	for i := 0; i < w.count; i++ {
		diff := w.values[i] - mean
		variance += diff * diff
	}
	variance /= float64(w.count)
	return math.Sqrt(variance)
}
