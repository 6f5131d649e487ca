package testutil

import (
	"sync"
	"time"
)

// FixedClock hands out strictly increasing wall-clock readings starting
// from a fixed instant. Tests wire its Now method into components that
// normally use time.Now, so timestamps and durations in persisted
// artifacts are reproducible.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFixedClock creates a clock starting at start, advancing by step on
// every reading. A zero step freezes the clock.
func NewFixedClock(start time.Time, step time.Duration) *FixedClock {
	return &FixedClock{now: start, step: step}
}

// Now returns the current reading and advances the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Current returns the current reading without advancing.
func (c *FixedClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// FixedIDs returns predetermined identifiers in order.
//
// Enables byte-identical persisted plans and results across test runs.
// Panics when all ids are consumed; exhausting the sequence means the
// test generated more artifacts than it accounted for.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Next returns the next predetermined id.
func (g *FixedIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("testutil: all fixed ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
