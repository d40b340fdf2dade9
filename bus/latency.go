package bus

import (
	"sync"
	"time"
)

// latencyTracker keeps a simple running average of call latency per provider
// name. The average is cumulative over the provider's lifetime; it feeds the
// latency-based selection strategy and is reset only when the bus is
// recreated.
type latencyTracker struct {
	mu   sync.Mutex
	avgs map[string]*runningAverage
}

type runningAverage struct {
	count int64
	mean  float64 // nanoseconds
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{avgs: make(map[string]*runningAverage)}
}

// Record folds one observed call duration into the provider's average.
func (t *latencyTracker) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	avg, ok := t.avgs[name]
	if !ok {
		avg = &runningAverage{}
		t.avgs[name] = avg
	}
	avg.count++
	avg.mean += (float64(d) - avg.mean) / float64(avg.count)
}

// Average returns the provider's running average latency. ok is false when
// no call has been recorded yet.
func (t *latencyTracker) Average(name string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	avg, ok := t.avgs[name]
	if !ok {
		return 0, false
	}
	return time.Duration(avg.mean), true
}
