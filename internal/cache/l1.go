// Package cache provides the in-process coordination primitives shared by
// the engines: an L1 cache with distinct hit/miss TTLs, a per-key
// singleflight, and a rate-limiting refresh gate. Persisted (L2) state lives
// in the storage gateway; this package never touches blobs.
package cache

import (
	"sync"
	"time"
)

// Layer labels reported to callers so they can see where a payload came from.
const (
	LayerL1          = "l1"
	LayerL1AfterWait = "l1-after-wait"
	LayerL2AfterWait = "l2-after-wait"
	LayerL2          = "l2"
	LayerUpstream    = "upstream"
	LayerL2Stale     = "l2-stale"
)

type l1Entry struct {
	payload   any
	miss      bool
	expiresAt time.Time
}

// L1 is a TTL cache where negative entries expire sooner than positive
// ones, so a missing upstream record is retried well before a good one.
type L1 struct {
	mu      sync.Mutex
	entries map[string]l1Entry
	hitTTL  time.Duration
	missTTL time.Duration
	now     func() time.Time
}

// NewL1 creates an L1 cache with the given hit and miss TTLs.
func NewL1(hitTTL, missTTL time.Duration) *L1 {
	return &L1{
		entries: make(map[string]l1Entry),
		hitTTL:  hitTTL,
		missTTL: missTTL,
		now:     time.Now,
	}
}

// Get returns the cached payload for key. ok is false when the key is
// absent or expired. miss reports a cached negative entry (payload nil).
func (c *L1) Get(key string) (payload any, miss bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return nil, false, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, false
	}
	return e.payload, e.miss, true
}

// SetHit stores a positive entry held for the hit TTL.
func (c *L1) SetHit(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = l1Entry{payload: payload, expiresAt: c.now().Add(c.hitTTL)}
}

// SetMiss stores a negative entry held for the shorter miss TTL.
func (c *L1) SetMiss(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = l1Entry{miss: true, expiresAt: c.now().Add(c.missTTL)}
}

// Invalidate drops the entry for key.
func (c *L1) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
