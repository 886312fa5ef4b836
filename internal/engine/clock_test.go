package engine

import (
	"sync"
	"time"
)

// manualClock only moves when Advance is called.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
	sleeps  []time.Duration
	changed chan struct{}
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start, changed: make(chan struct{}, 64)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: c.now.Add(d), ch: ch})
	select {
	case c.changed <- struct{}{}:
	default:
	}
	return ch
}

// Advance moves time forward and fires every due waiter.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

// waitForSleeper blocks until someone is waiting on After.
func (c *manualClock) waitForSleeper(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		n := len(c.waiters)
		c.mu.Unlock()
		if n > 0 {
			return true
		}
		select {
		case <-c.changed:
		case <-deadline:
			return false
		}
	}
}

func (c *manualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
