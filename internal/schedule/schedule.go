// Package schedule rate-limits work triggered by bursts of calls.
//
// A Debouncer collapses a burst into one delivery of the last call's argument,
// once the burst has been quiet for the interval. A Throttler delivers the
// first call's argument one interval after it arrived and drops every call
// made while that delivery is pending.
//
// Each wrapper owns a single pending slot; wrappers never coordinate with one
// another.
package schedule

import (
	"sync"
	"time"
)

type options struct {
	clock Clock
}

// Option configures a Debouncer or Throttler.
type Option func(*options)

// WithClock replaces the real clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: RealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// slot is the one-slot pending state shared by both modes. gen is bumped
// whenever the pending timer is replaced or cancelled, so a timer that fires
// after losing a race with Stop or Call can tell it is stale.
type slot[T any] struct {
	mu    sync.Mutex
	timer Timer
	gen   uint64
	arg   T
}

// arm must be called with mu held.
func (s *slot[T]) arm(clock Clock, interval time.Duration, arg T, run func(gen uint64)) {
	s.gen++
	gen := s.gen
	s.arg = arg
	s.timer = clock.AfterFunc(interval, func() { run(gen) })
}

// take clears the slot if gen is still current and returns the stored
// argument.
func (s *slot[T]) take(gen uint64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.timer == nil || gen != s.gen {
		return zero, false
	}
	arg := s.arg
	s.timer = nil
	s.arg = zero
	return arg, true
}

// cancel must be called with mu held.
func (s *slot[T]) cancel() bool {
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	var zero T
	s.arg = zero
	return true
}

func (s *slot[T]) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func clampInterval(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// Debouncer delivers the argument of the last Call once no further calls have
// arrived for the interval.
type Debouncer[T any] struct {
	fn       func(T)
	interval time.Duration
	clock    Clock
	slot     slot[T]
}

// NewDebouncer wraps fn. Negative intervals are treated as zero.
func NewDebouncer[T any](fn func(T), interval time.Duration, opts ...Option) *Debouncer[T] {
	o := buildOptions(opts)
	return &Debouncer[T]{fn: fn, interval: clampInterval(interval), clock: o.clock}
}

// Call cancels any pending delivery and schedules arg to be delivered one
// interval from now.
func (d *Debouncer[T]) Call(arg T) {
	d.slot.mu.Lock()
	defer d.slot.mu.Unlock()
	if d.slot.timer != nil {
		d.slot.timer.Stop()
	}
	d.slot.arm(d.clock, d.interval, arg, d.run)
}

func (d *Debouncer[T]) run(gen uint64) {
	if arg, ok := d.slot.take(gen); ok {
		d.fn(arg)
	}
}

// Flush delivers a pending argument immediately on the caller's goroutine.
// It reports whether anything was pending.
func (d *Debouncer[T]) Flush() bool {
	d.slot.mu.Lock()
	if d.slot.timer == nil {
		d.slot.mu.Unlock()
		return false
	}
	arg := d.slot.arg
	d.slot.cancel()
	d.slot.mu.Unlock()

	d.fn(arg)
	return true
}

// Stop drops a pending delivery. It reports whether one was pending.
func (d *Debouncer[T]) Stop() bool {
	d.slot.mu.Lock()
	defer d.slot.mu.Unlock()
	return d.slot.cancel()
}

// Pending reports whether a delivery is scheduled.
func (d *Debouncer[T]) Pending() bool {
	return d.slot.pending()
}

// Throttler delivers at most one call per interval: the first Call in a quiet
// period is delivered one interval later and calls made in between are
// dropped.
type Throttler[T any] struct {
	fn       func(T)
	interval time.Duration
	clock    Clock
	slot     slot[T]
}

// NewThrottler wraps fn. Negative intervals are treated as zero.
func NewThrottler[T any](fn func(T), interval time.Duration, opts ...Option) *Throttler[T] {
	o := buildOptions(opts)
	return &Throttler[T]{fn: fn, interval: clampInterval(interval), clock: o.clock}
}

// Call schedules arg for delivery unless a delivery is already pending, in
// which case arg is dropped. It reports whether arg was scheduled.
func (t *Throttler[T]) Call(arg T) bool {
	t.slot.mu.Lock()
	defer t.slot.mu.Unlock()
	if t.slot.timer != nil {
		return false
	}
	t.slot.arm(t.clock, t.interval, arg, t.run)
	return true
}

func (t *Throttler[T]) run(gen uint64) {
	if arg, ok := t.slot.take(gen); ok {
		t.fn(arg)
	}
}

// Stop drops a pending delivery. It reports whether one was pending.
func (t *Throttler[T]) Stop() bool {
	t.slot.mu.Lock()
	defer t.slot.mu.Unlock()
	return t.slot.cancel()
}

// Pending reports whether a delivery is scheduled.
func (t *Throttler[T]) Pending() bool {
	return t.slot.pending()
}
