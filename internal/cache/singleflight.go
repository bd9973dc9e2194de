package cache

import (
	"sync"
	"time"
)

// DefaultFollowerWait bounds how long a follower blocks on the leader
// before giving up and reporting the upstream unavailable.
const DefaultFollowerWait = 12 * time.Second

// Flight coordinates per-key refreshes: the first caller for a key becomes
// the leader; everyone else becomes a follower waiting on the leader's done
// channel. Unlike a result-sharing singleflight, followers do not receive
// the leader's value directly; they re-check the cache layers after waking,
// which also covers the case where the leader died and a stale L2 copy is
// the best available answer.
type Flight struct {
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewFlight creates an empty flight table.
func NewFlight() *Flight {
	return &Flight{inflight: make(map[string]chan struct{})}
}

// Begin enters the critical section for key. When leader is true the caller
// owns the refresh and must call Finish exactly once; otherwise done is the
// channel closed by the current leader's Finish.
func (f *Flight) Begin(key string) (leader bool, done <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.inflight[key]; ok {
		return false, ch
	}
	ch := make(chan struct{})
	f.inflight[key] = ch
	return true, ch
}

// Finish releases the leadership for key and wakes all followers. Safe to
// call from a deferred statement after a failed refresh.
func (f *Flight) Finish(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.inflight[key]; ok {
		delete(f.inflight, key)
		close(ch)
	}
}

// Wait blocks until done closes or the bounded wait elapses. Returns false
// on timeout.
func Wait(done <-chan struct{}, limit time.Duration) bool {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
