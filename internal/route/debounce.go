package route

import (
	"sync"
	"time"
)

type stopper interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) }

// Debouncer runs at most one delayed task. Scheduling a new task cancels
// the pending one; a cancelled task never runs, even if its timer already
// fired.
type Debouncer struct {
	mu      sync.Mutex
	gen     uint64
	pending stopper
	stopped bool

	afterFunc func(time.Duration, func()) stopper
}

// NewDebouncer returns an idle debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{afterFunc: realAfterFunc}
}

// Handle refers to one scheduled task.
type Handle struct {
	d   *Debouncer
	gen uint64
}

// Cancel stops the task if it is still pending and reports whether it did.
func (h Handle) Cancel() bool {
	if h.d == nil {
		return false
	}
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if h.d.gen != h.gen || h.d.pending == nil {
		return false
	}
	h.d.cancelLocked()
	return true
}

// Current reports whether the handle is the latest scheduled task and has
// not been cancelled.
func (h Handle) Current() bool {
	if h.d == nil {
		return false
	}
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return h.d.gen == h.gen && !h.d.stopped
}

// Schedule runs fn after delay on a timer goroutine, superseding any
// pending task. fn receives the task's own handle. After Stop it returns a
// zero Handle and schedules nothing.
func (d *Debouncer) Schedule(delay time.Duration, fn func(Handle)) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return Handle{}
	}
	d.cancelLocked()
	gen := d.gen
	d.pending = d.afterFunc(delay, func() {
		d.mu.Lock()
		if d.gen != gen || d.stopped {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		fn(Handle{d: d, gen: gen})
	})
	return Handle{d: d, gen: gen}
}

// Cancel stops the pending task, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()
}

// Stop cancels the pending task and refuses new ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.cancelLocked()
	d.stopped = true
	d.mu.Unlock()
}

// Pending reports whether a task is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) cancelLocked() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.gen++
}
