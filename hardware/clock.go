package hardware

import (
	"sync"
	"time"
)

// Clock abstracts time for detector exposures so tests can drive it.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives the clock time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock follows wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type timer struct {
	at time.Time
	ch chan time.Time
}

// ManualClock only advances when Advance is called. Pending After channels
// fire once the clock reaches their deadline.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []timer
}

// NewManualClock constructs a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, timer{at: at, ch: ch})
	return ch
}

// Pending reports how many After channels have not fired yet.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Advance moves the clock forward by d and fires every due timer.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []timer
	kept := c.pending[:0]
	for _, t := range c.pending {
		if !t.at.After(now) {
			due = append(due, t)
		} else {
			kept = append(kept, t)
		}
	}
	c.pending = kept
	c.mu.Unlock()

	for _, t := range due {
		t.ch <- now
	}
}
