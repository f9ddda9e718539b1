package risk

import (
	"sync"
	"time"
)

// DailyCounter counts events within one calendar day of the process's
// local timezone and resets itself the first time it is touched after a
// date rollover. The clock is injectable for tests.
type DailyCounter struct {
	mu        sync.Mutex
	count     int
	lastReset time.Time
	now       func() time.Time
}

func NewDailyCounter(now func() time.Time) *DailyCounter {
	if now == nil {
		now = time.Now
	}
	c := &DailyCounter{now: now}
	c.lastReset = dateOf(now())
	return c
}

// ResetIfNewDay zeroes the counter when the local calendar date has
// advanced past the last reset date. Returns true when a reset happened.
func (c *DailyCounter) ResetIfNewDay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	today := dateOf(c.now())
	if today.Equal(c.lastReset) {
		return false
	}
	c.count = 0
	c.lastReset = today
	return true
}

func (c *DailyCounter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count
}

func (c *DailyCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
