package testutil

import (
	"sync"
	"time"
)

// Call is one invocation captured by a Recorder.
type Call[T any] struct {
	Arg T
	At  time.Duration
}

// Recorder captures the arguments a callback was invoked with, stamped with
// the time reported by now.
type Recorder[T any] struct {
	mu    sync.Mutex
	now   func() time.Duration
	calls []Call[T]
}

// NewRecorder creates a recorder. now may be nil, in which case every call is
// stamped with zero.
func NewRecorder[T any](now func() time.Duration) *Recorder[T] {
	if now == nil {
		now = func() time.Duration { return 0 }
	}
	return &Recorder[T]{now: now}
}

// Record is the callback to hand to the code under test.
func (r *Recorder[T]) Record(arg T) {
	at := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call[T]{Arg: arg, At: at})
}

// Calls returns a copy of the captured calls.
func (r *Recorder[T]) Calls() []Call[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call[T], len(r.calls))
	copy(out, r.calls)
	return out
}
