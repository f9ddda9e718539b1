package trader

import (
	"sync"
	"time"
)

// noFillWindow is how long the book can sit untouched before a cycle
// counts as a no-fill.
const noFillWindow = 5 * time.Minute

// VolumeTracker accumulates traded volume against a daily target and
// watches for stretches without fills. Totals reset on the first touch
// after a local calendar-day rollover.
type VolumeTracker struct {
	mu            sync.Mutex
	daily         float64
	target        float64
	lastReset     time.Time
	lastTradeTime time.Time
	noFills       int
	now           func() time.Time
}

func NewVolumeTracker(target float64, now func() time.Time) *VolumeTracker {
	if now == nil {
		now = time.Now
	}
	v := &VolumeTracker{target: target, now: now}
	v.lastReset = dateOf(now())
	v.lastTradeTime = now()
	return v
}

// ResetIfNewDay zeroes the daily total after a date rollover. Returns
// true when a reset happened.
func (v *VolumeTracker) ResetIfNewDay() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	today := dateOf(v.now())
	if today.Equal(v.lastReset) {
		return false
	}
	v.daily = 0
	v.lastReset = today
	return true
}

// Observe records the outcome of a cycle: a positive trade size adds to
// the daily total and clears the no-fill streak; a zero size bumps the
// streak once the no-fill window has elapsed since the last trade.
func (v *VolumeTracker) Observe(tradeSize float64) {
	v.ResetIfNewDay()

	v.mu.Lock()
	defer v.mu.Unlock()
	if tradeSize > 0 {
		v.daily += tradeSize
		v.lastTradeTime = v.now()
		v.noFills = 0
		return
	}
	if v.now().Sub(v.lastTradeTime) > noFillWindow {
		v.noFills++
	}
}

func (v *VolumeTracker) Daily() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.daily
}

// Progress is the fraction of the daily target already traded.
func (v *VolumeTracker) Progress() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.target <= 0 {
		return 0
	}
	return v.daily / v.target
}

func (v *VolumeTracker) ConsecutiveNoFills() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.noFills
}

// ClearNoFills resets the no-fill streak after the spread has been
// tightened in response to it.
func (v *VolumeTracker) ClearNoFills() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.noFills = 0
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
