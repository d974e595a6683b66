package service

import (
	"sync"

	"github.com/kjstillabower/weather-widget/internal/observability"
)

// missTracker counts lookups waiting on an upstream fetch, per cache key. A second
// waiter on the same key means the entry expired under concurrent load (a stampede).
type missTracker struct {
	mu      sync.Mutex
	waiting map[string]int
	total   int
}

func newMissTracker() *missTracker {
	return &missTracker{waiting: make(map[string]int)}
}

// begin registers a miss on key and returns how many misses on key are now waiting,
// plus the func that ends this one. Stampede metrics are recorded when that count
// exceeds one.
func (t *missTracker) begin(key string) (int, func()) {
	t.mu.Lock()
	t.waiting[key]++
	t.total++
	n := t.waiting[key]
	t.mu.Unlock()

	if n > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		observability.CacheStampedeConcurrency.Observe(float64(n))
	}
	var once sync.Once
	return n, func() { once.Do(func() { t.end(key) }) }
}

func (t *missTracker) end(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.waiting[key]
	if !ok {
		return
	}
	t.total--
	if n <= 1 {
		delete(t.waiting, key)
		return
	}
	t.waiting[key] = n - 1
}

// Pending returns the number of misses waiting on upstream across all keys.
func (t *missTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
