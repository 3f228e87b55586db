package match

import (
	"fmt"
	"sync"
	"time"
)

// waitStats keeps a moving window of recent time-to-match samples per
// region and 200-point rating bucket. Estimates from it are a UX
// heuristic, not a promise.
type waitStats struct {
	mu       sync.Mutex
	window   int
	fallback time.Duration
	samples  map[string][]time.Duration
}

func newWaitStats(window int, fallback time.Duration) *waitStats {
	if window <= 0 {
		window = 32
	}
	return &waitStats{
		window:   window,
		fallback: fallback,
		samples:  make(map[string][]time.Duration),
	}
}

func (w *waitStats) Record(region string, rating int, wait time.Duration) {
	key := bucketKey(region, rating)

	w.mu.Lock()
	defer w.mu.Unlock()

	s := append(w.samples[key], wait)
	if len(s) > w.window {
		s = s[len(s)-w.window:]
	}
	w.samples[key] = s
}

func (w *waitStats) Estimate(region string, rating int) time.Duration {
	key := bucketKey(region, rating)

	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.samples[key]
	if len(s) == 0 {
		return w.fallback
	}
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total / time.Duration(len(s))
}

func bucketKey(region string, rating int) string {
	return fmt.Sprintf("%s:%d", region, rating/200)
}
