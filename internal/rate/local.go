package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process, per-key token bucket that keeps metering
// when the Redis counter store is unreachable and the caller fails open. Its
// verdicts are advisory: with no cross-instance coordination they only tell
// the caller what the shared counter would likely have said.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	rps      rate.Limit
	burst    int
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter allowing roughly limit events per
// window for each key.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		rps:      rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
	}
}

// Allow reports whether one event for key fits the local budget.
func (l *LocalLimiter) Allow(key string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	l.evictStaleLocked()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// Entries are dropped after an hour of inactivity to keep the map bounded.
func (l *LocalLimiter) evictStaleLocked() {
	if len(l.limiters) < 10000 {
		return
	}
	cutoff := time.Now().Add(-time.Hour)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}
