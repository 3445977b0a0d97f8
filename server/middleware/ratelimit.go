// Package middleware holds HTTP middleware shared by the API surface.
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CallerLimiter rate limits chat requests per caller using a token
// bucket per caller ID. Stale buckets are evicted so the map does not
// grow without bound.
type CallerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerEntry

	rps   rate.Limit
	burst int
}

type callerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewCallerLimiter creates a limiter allowing rps requests per second
// with the given burst per caller.
func NewCallerLimiter(rps float64, burst int) *CallerLimiter {
	l := &CallerLimiter{
		limiters: make(map[string]*callerEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go l.evictLoop()
	return l
}

// Allow reports whether the caller may proceed.
func (l *CallerLimiter) Allow(callerID string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[callerID]
	if !ok {
		entry = &callerEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[callerID] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

func (l *CallerLimiter) evictLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		l.mu.Lock()
		for id, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, id)
			}
		}
		l.mu.Unlock()
	}
}
