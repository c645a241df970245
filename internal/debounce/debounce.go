// Package debounce provides a scheduled-call queue of depth one: scheduling a
// call cancels any call that has not fired yet and restarts the delay.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays a call until its window passes without a newer Schedule.
// It never cancels a call that has already started running.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a debouncer with the given window
func New(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Window returns the configured delay
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Schedule arms fn to run after the window. Any pending, unfired call is
// dropped. It reports whether a pending call was superseded. After Stop,
// Schedule is a no-op.
func (d *Debouncer) Schedule(fn func()) (superseded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	superseded = d.cancelLocked()

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A timer whose Stop raced with expiry must not run a stale call
		if d.gen != gen || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		fn()
	})

	return superseded
}

// Pending reports whether a call is armed and has not fired
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending call, if any
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

// Stop cancels the pending call and refuses further schedules
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) cancelLocked() bool {
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}
