// Package ratelimit implements a sliding-window request limiter keyed by
// API endpoint. Unlike a token bucket it never blocks: a denied call is
// simply not admitted, and the caller decides how to back off.
package ratelimit

import (
	"sync"
	"time"

	"github.com/mhorvath/vintedwatch/internal/clock"
)

// Limiter tracks admitted request timestamps per endpoint over a trailing
// window. State lives for the process only.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	clock   clock.Clock
}

// New creates a Limiter. A nil clock falls back to the system clock.
func New(c clock.Clock) *Limiter {
	if c == nil {
		c = clock.System{}
	}
	return &Limiter{
		windows: make(map[string][]time.Time),
		clock:   c,
	}
}

// Allow reports whether a request to endpoint is admitted under a cap of
// max requests per trailing window. Entries older than the window are
// evicted first; admitted calls are recorded, denied calls are not.
// Eviction, check, and record happen atomically per call.
func (l *Limiter) Allow(endpoint string, max int, window time.Duration) bool {
	now := l.clock.Now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.windows[endpoint][:0]
	for _, ts := range l.windows[endpoint] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= max {
		l.windows[endpoint] = kept
		return false
	}
	l.windows[endpoint] = append(kept, now)
	return true
}
