package schedule

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay is the coalescing window for overlay refreshes
const DefaultDelay = 100 * time.Millisecond

// Debouncer runs fn once input has been quiet for the delay. Each Trigger
// supersedes the pending run, so at most one run is ever pending and the
// last one sees the final state. Cancelling the context drops any pending
// run and disables the debouncer for good.
type Debouncer struct {
	fn    func()
	delay time.Duration
	ctx   context.Context

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewDebouncer creates a debouncer bound to ctx
func NewDebouncer(ctx context.Context, delay time.Duration, fn func()) *Debouncer {
	d := &Debouncer{fn: fn, delay: delay, ctx: ctx}
	context.AfterFunc(ctx, d.Cancel)
	return d
}

// Trigger schedules a run, replacing a pending one
func (d *Debouncer) Trigger() {
	if d.ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.run(seq) })
}

// Pending reports whether a run is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending call immediately
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
		d.seq++
	}
	d.mu.Unlock()

	if pending && d.ctx.Err() == nil {
		d.fn()
	}
}

// Cancel drops a pending call
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// run fires for the trigger numbered seq; stale timers that lost the race
// with a newer Trigger, Flush or Cancel do nothing.
func (d *Debouncer) run(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	if d.ctx.Err() != nil {
		return
	}
	d.fn()
}
