// Package clocktest wraps clockwork's fake clock for tests of timer-driven code.
//
// clockwork runs AfterFunc callbacks on their own goroutine. Clock.Advance
// waits for every callback that came due, so assertions made after Advance
// see its effects.
package clocktest

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// callbackTimeout bounds how long Advance waits for a due callback
const callbackTimeout = 5 * time.Second

// Clock is a clockwork.FakeClock that tracks AfterFunc callbacks
type Clock struct {
	clockwork.FakeClock

	tb     testing.TB
	mu     sync.Mutex
	timers []*timer
}

type timer struct {
	clockwork.Timer
	clock   *Clock
	due     time.Time
	done    chan struct{}
	stopped bool
}

// New creates a fake clock starting at start
func New(tb testing.TB, start time.Time) *Clock {
	return &Clock{FakeClock: clockwork.NewFakeClockAt(start), tb: tb}
}

// AfterFunc schedules f on the fake clock
func (c *Clock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	t := &timer{clock: c, due: c.Now().Add(d), done: make(chan struct{})}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	t.Timer = c.FakeClock.AfterFunc(d, func() {
		defer close(t.done)
		f()
	})
	return t
}

// Advance moves the clock forward and waits for the callbacks that came due
func (c *Clock) Advance(d time.Duration) {
	c.tb.Helper()
	c.FakeClock.Advance(d)
	now := c.Now()

	c.mu.Lock()
	var due []*timer
	live := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.due.After(now):
			due = append(due, t)
		default:
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()

	for _, t := range due {
		select {
		case <-t.done:
		case <-time.After(callbackTimeout):
			c.tb.Fatalf("clocktest: callback due at %s did not finish", t.due)
		}
	}
}

// Pending returns the number of callbacks that are scheduled and not stopped
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.Now()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && t.due.After(now) {
			n++
		}
	}
	return n
}

func (t *timer) Stop() bool {
	stopped := t.Timer.Stop()
	if stopped {
		t.clock.mu.Lock()
		t.stopped = true
		t.clock.mu.Unlock()
	}
	return stopped
}
