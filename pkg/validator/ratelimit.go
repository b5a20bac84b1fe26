package validator

import (
	"sync"
	"time"
)

// RateLimiter decides whether a caller identified by an opaque string may
// proceed. Implementations must be safe for concurrent use; exceeding the
// budget is reported by returning false, never by an error.
type RateLimiter interface {
	Allow(identifier string) bool
}

// MemoryLimiter is a sliding-window rate limiter held in process memory.
// One window of request timestamps is kept per identifier; stale
// identifiers are pruned on the fly using the monotonic clock.
type MemoryLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	now         func() time.Time // test hook
}

// NewMemoryLimiter creates a limiter allowing maxRequests per window.
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records one request for identifier and reports whether it fits in
// the current window.
func (l *MemoryLimiter) Allow(identifier string) bool {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop identifiers whose newest request fell out of the window.
	for id, times := range l.requests {
		if len(times) == 0 || times[len(times)-1].Before(windowStart) {
			delete(l.requests, id)
		}
	}

	times := l.requests[identifier]
	live := times[:0]
	for _, t := range times {
		if t.After(windowStart) {
			live = append(live, t)
		}
	}

	if len(live) >= l.maxRequests {
		l.requests[identifier] = live
		return false
	}

	l.requests[identifier] = append(live, now)
	return true
}
