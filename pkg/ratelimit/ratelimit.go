// Package ratelimit implements a sliding-window rate limiter keyed by an
// opaque string (remote IP, username, operation).
//
// The window slides with each query: an event is admitted when fewer than
// `limit` events remain within the trailing window, regardless of window
// alignment. Stale timestamps are pruned lazily when their key is queried
// again; there is no global sweep. A key that stops being queried therefore
// retains its last timestamp list indefinitely. That is a deliberate
// bounded-cardinality tradeoff: keys are client IPs and local usernames,
// not unbounded input.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a concurrency-safe sliding-window counter. A single instance is
// constructed at process start and shared by reference between the listener
// and the send path.
type Limiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time // Overridable in tests
}

func NewLimiter() *Limiter {
	return &Limiter{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allowed reports whether one more event for key fits within the trailing
// window, and records it if so. The read-prune-append sequence runs under the
// limiter mutex so concurrent bursts on the same key cannot exceed the limit.
func (l *Limiter) Allowed(key string, limit int, window time.Duration) bool {
	if l == nil || limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	timestamps := l.events[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= limit {
		l.events[key] = valid
		return false
	}

	l.events[key] = append(valid, now)
	return true
}

// Reset clears all stored state for a key.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}
