// Package ratelimit implements sliding-window admission control keyed by an
// arbitrary string. The limiter is an explicitly constructed, owned
// component with its own lock, passed into request handling rather than
// hidden behind a global.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most maxRequests per key within a rolling window.
// Buckets are trimmed lazily on each check, so the lock is held for
// O(bucket size) per call.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	buckets     map[string][]time.Time

	// now is injectable for tests
	now func() time.Time
}

// New creates a limiter. maxRequests <= 0 or window <= 0 disables limiting:
// every call admits.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		buckets:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// SetNow replaces the clock (tests only)
func (l *Limiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow purges timestamps older than now-window from the key's bucket,
// admits iff the remaining bucket is below the cap, and records the
// admission. Safe under concurrent calls across and within keys.
func (l *Limiter) Allow(key string) bool {
	if l.maxRequests <= 0 || l.window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	bucket := l.buckets[key]
	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxRequests {
		l.buckets[key] = kept
		return false
	}

	l.buckets[key] = append(kept, now)
	return true
}

// Size reports the current bucket size for a key after trimming, useful
// for headers and introspection.
func (l *Limiter) Size(key string) int {
	if l.maxRequests <= 0 || l.window <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.buckets[key] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
