// Package testutil holds small helpers shared by package tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a controllable wall clock for tests. Components take a
// `now func() time.Time`; pass clock.Now to pin time and Advance to move
// it.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock pinned at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current pinned time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Tick returns a Now-compatible function that advances the clock by step
// on every call, so consecutive reads are strictly increasing.
func (c *Clock) Tick(step time.Duration) func() time.Time {
	return func() time.Time {
		return c.Advance(step)
	}
}
