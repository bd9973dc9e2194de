package cache

import (
	"sync"
	"time"
)

// RefreshGate rate-limits refresh attempts per key: a successful refresh
// blocks another one for the minimum interval, a failed one installs a
// shorter backoff so a flapping upstream is not hammered.
type RefreshGate struct {
	mu          sync.Mutex
	lastOK      map[string]time.Time
	lastFail    map[string]time.Time
	minInterval time.Duration
	failBackoff time.Duration
	now         func() time.Time
}

// NewRefreshGate creates a gate with the given windows.
func NewRefreshGate(minInterval, failBackoff time.Duration) *RefreshGate {
	return &RefreshGate{
		lastOK:      make(map[string]time.Time),
		lastFail:    make(map[string]time.Time),
		minInterval: minInterval,
		failBackoff: failBackoff,
		now:         time.Now,
	}
}

// Allow reports whether a refresh for key may run now.
func (g *RefreshGate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if t, ok := g.lastOK[key]; ok && now.Sub(t) < g.minInterval {
		return false
	}
	if t, ok := g.lastFail[key]; ok && now.Sub(t) < g.failBackoff {
		return false
	}
	return true
}

// RecordOK marks a successful refresh for key.
func (g *RefreshGate) RecordOK(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastOK[key] = g.now()
	delete(g.lastFail, key)
}

// RecordFail marks a failed refresh for key.
func (g *RefreshGate) RecordFail(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastFail[key] = g.now()
}
