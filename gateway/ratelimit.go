package gateway

import (
	"sync"
	"time"
)

// RateLimiter gates player actions at the application layer. Keys are
// player+action, so a player bursting cashouts cannot starve their own
// bets.
type RateLimiter interface {
	Allow(playerID, action string) bool
}

// InMemoryRateLimiter is a sliding-window counter: at most limit actions per
// window per key. Timestamps older than the window are pruned on each call,
// and keys idle for a full window are swept so the map does not accumulate
// every player+action ever seen.
type InMemoryRateLimiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewInMemoryRateLimiter(limit int, window time.Duration) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *InMemoryRateLimiter) Allow(playerID, action string) bool {
	key := playerID + ":" + action
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now, cutoff)

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

// sweepLocked runs at most once per window and drops every key whose newest
// hit has aged out.
func (l *InMemoryRateLimiter) sweepLocked(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, ts := range l.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
}
