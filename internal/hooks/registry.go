package hooks

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
)

// Unsubscribe removes the registration it was returned for. Calling it more
// than once is a no-op.
type Unsubscribe func()

// FireObserver is told about every Fire after delivery finished.
type FireObserver func(name string, delivered, failed int)

type options struct {
	logger   *slog.Logger
	observer FireObserver
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFireObserver registers a callback invoked once per Fire.
func WithFireObserver(fn FireObserver) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// subscriber pairs a callback with the slot id handed out by Hook. The id,
// not the function value, identifies the registration.
type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Registry is a list of subscribers for values of type T. The zero value is
// not usable; create one with New.
type Registry[T any] struct {
	name string
	opts options

	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

// New creates an empty registry. The name is used in logs and metrics.
func New[T any](name string, opts ...Option) *Registry[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{name: name, opts: o}
}

// Name returns the registry name given to New.
func (r *Registry[T]) Name() string {
	return r.name
}

// Hook registers fn for future fires and returns the capability that removes
// this registration again.
func (r *Registry[T]) Hook(fn func(T)) Unsubscribe {
	if fn == nil {
		panic("hooks: nil callback")
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs = append(r.subs, subscriber[T]{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.remove(id)
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = slices.DeleteFunc(r.subs, func(s subscriber[T]) bool {
		return s.id == id
	})
}

// Len returns the number of current subscribers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Fire calls every subscriber registered at the moment of the call with data,
// in registration order. Callbacks run on the caller's goroutine, outside the
// registry lock.
func (r *Registry[T]) Fire(data T) {
	r.mu.Lock()
	snapshot := slices.Clone(r.subs)
	r.mu.Unlock()

	failed := 0
	for _, s := range snapshot {
		if err := r.call(s, data); err != nil {
			failed++
		}
	}

	if r.opts.observer != nil {
		r.opts.observer(r.name, len(snapshot)-failed, failed)
	}
}

func (r *Registry[T]) call(s subscriber[T], data T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook subscriber panicked: %v", rec)
			r.opts.logger.Error("Hook subscriber panicked",
				slog.String("hook", r.name),
				slog.Uint64("subscriber", s.id),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.fn(data)
	return nil
}
