// Package memclock provides a fixed, manually advanced ledger.Clock for
// tests, mirroring Soroban's Env::ledger().set_timestamp() test harness.
package memclock

import "sync"

// Clock is a mutable, goroutine-safe fixed-time clock.
type Clock struct {
	mu  sync.Mutex
	now uint64
}

// New returns a Clock starting at the given Unix-second timestamp.
func New(start uint64) *Clock {
	return &Clock{now: start}
}

// Now implements ledger.Clock.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by delta seconds.
func (c *Clock) Advance(delta uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
}

// Set pins the clock to an absolute Unix-second timestamp.
func (c *Clock) Set(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}
