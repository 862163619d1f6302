package timers

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts timer scheduling so delayed transitions can be driven by a
// fake clock in tests.
type Clock interface {
	// AfterFunc schedules fn to run after d and returns a handle that can
	// stop the pending call.
	AfterFunc(d time.Duration, fn func()) Timer

	// Now returns the current time.
	Now() time.Time
}

// Timer is a handle to a scheduled call.
type Timer interface {
	// Stop cancels the pending call. It reports whether the call was
	// prevented from running.
	Stop() bool
}

// RealClock implements Clock using the time package.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, fn func()) Timer { //nolint:ireturn
	return time.AfterFunc(d, fn)
}

func (RealClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a deterministic Clock for tests. Time only moves when
// Advance is called; due callbacks run synchronously on the advancing
// goroutine in schedule order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*manualTimer
}

// NewManualClock creates a manual clock starting at now.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

type manualTimer struct {
	clock   *ManualClock
	when    time.Time
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	was := t.stopped
	t.stopped = true

	return !was
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) Timer { //nolint:ireturn
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.pending = append(c.pending, t)

	return t
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d, running every due callback. Callbacks
// scheduled while advancing also run when they come due within the window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		next := c.popDue(target)
		if next == nil {
			break
		}

		next.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// popDue removes and returns the earliest unstopped timer due at or before
// target, advancing now to its deadline.
func (c *ManualClock) popDue(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.pending[:0]

	for _, t := range c.pending {
		if !t.stopped {
			live = append(live, t)
		}
	}

	c.pending = live

	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].when.Before(c.pending[j].when)
	})

	if len(c.pending) == 0 || c.pending[0].when.After(target) {
		return nil
	}

	next := c.pending[0]
	c.pending = c.pending[1:]

	if next.when.After(c.now) {
		c.now = next.when
	}

	return next
}
