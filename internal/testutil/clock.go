package testutil

import (
	"sync"
	"time"
)

// ReferenceNow is the instant golden tests compile against: Wednesday
// 2026-10-14 15:30 UTC. Its week starts Monday 2026-10-12.
var ReferenceNow = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

// FixedClock is a settable wall clock for tests.
//
// Now returns the same instant until Set or Advance moves it, so temporal
// ranges computed within one test are identical no matter how often "now"
// is read.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// NewReferenceClock creates a clock stopped at ReferenceNow.
func NewReferenceClock() *FixedClock {
	return NewFixedClock(ReferenceNow)
}

// Now returns the current instant without moving the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
