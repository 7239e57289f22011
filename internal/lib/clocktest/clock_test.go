package clocktest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_AdvanceWaitsForCallbacks(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(t, start)

	var mu sync.Mutex
	var fired []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, name)
		}
	}
	c.AfterFunc(2*time.Second, record("b"))
	c.AfterFunc(5*time.Second, record("c"))
	assert.Equal(t, 2, c.Pending())

	c.Advance(3 * time.Second)
	mu.Lock()
	assert.Equal(t, []string{"b"}, fired)
	mu.Unlock()
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, start.Add(3*time.Second), c.Now())
}

func TestClock_StoppedTimerNeverFires(t *testing.T) {
	c := New(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Equal(t, 0, c.Pending())

	c.Advance(10 * time.Second)
	assert.False(t, fired)
}
