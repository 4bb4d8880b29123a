// Package throttle is the one rate-limiting abstraction shared by all
// synchronizers, so every feature gets identical gate/debounce semantics.
package throttle

import (
	"sync"
	"time"
)

// Gate allows at most one event per interval, measured on a monotonic
// clock. Events arriving inside the window are dropped, not queued, so a
// burst never produces a backlog.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval, now: time.Now}
}

// WithClock replaces the clock source. Test hook.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.now()
	if !g.last.IsZero() && t.Sub(g.last) < g.interval {
		return false
	}
	g.last = t
	return true
}

// Debouncer coalesces bursts into a single trailing-edge call: fn runs once
// Trigger has been quiet for wait. Re-triggering resets the timer.
type Debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	fn    func()
	timer *time.Timer
}

func NewDebouncer(wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{wait: wait, fn: fn}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fn)
}

// Flush runs fn immediately, cancelling any pending trailing call.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.fn
	d.mu.Unlock()
	fn()
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
