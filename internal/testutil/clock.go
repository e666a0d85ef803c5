package testutil

import (
	"sync"
	"time"
)

// FixedClock is a thread-safe wall clock for tests that only moves when
// told to.
//
// Unlike time.Now, FixedClock makes scanned_at and scan run timestamps
// reproducible, so golden files stay byte-identical across runs.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// DefaultTestTime is the instant NewFixedClock starts at when given a zero time.
var DefaultTestTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// NewFixedClock creates a clock frozen at start (UTC).
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = DefaultTestTime
	}
	return &FixedClock{now: start.UTC()}
}

// Now returns the current frozen instant.
//
// Implements ingest.Clock.
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
	c.now = t.UTC()
}
