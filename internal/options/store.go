// Package options holds the observable options of the background host: a
// nested document addressed by dotted keys, persisted to a YAML file.
package options

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/ctxbridge/internal/hooks"
	"github.com/vk/ctxbridge/internal/schedule"
	"gopkg.in/yaml.v3"
)

// DefaultSaveDelay is how long the store waits for further changes before
// writing the file.
const DefaultSaveDelay = 500 * time.Millisecond

var (
	// ErrEmptyKey is returned for keys with no path segments.
	ErrEmptyKey = errors.New("options: empty key")
	// ErrClosed is returned by Set after Close.
	ErrClosed = errors.New("options: store closed")
)

// Change maps the dotted keys that changed to their new values.
type Change map[string]any

type config struct {
	path      string
	saveDelay time.Duration
	defaults  map[string]any
	logger    *slog.Logger
	clock     schedule.Clock
	observer  hooks.FireObserver
}

// Option configures a Store.
type Option func(*config)

// WithFile persists the store to path. Without it the store is memory only.
func WithFile(path string) Option {
	return func(c *config) {
		c.path = path
	}
}

// WithSaveDelay sets the debounce interval of file writes.
func WithSaveDelay(d time.Duration) Option {
	return func(c *config) {
		c.saveDelay = d
	}
}

// WithDefaults seeds the store. Loaded values are merged over the defaults.
func WithDefaults(defaults map[string]any) Option {
	return func(c *config) {
		c.defaults = defaults
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock sets the clock driving the save debouncer.
func WithClock(clock schedule.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithFireObserver is passed to the change hook registry.
func WithFireObserver(fn hooks.FireObserver) Option {
	return func(c *config) {
		c.observer = fn
	}
}

// Store is safe for concurrent use.
type Store struct {
	cfg     config
	mu      sync.RWMutex
	values  map[string]any
	closed  bool
	changes *hooks.Registry[Change]
	saver   *schedule.Debouncer[struct{}]
	saveMu  sync.Mutex
}

// New creates a Store. Call Load to read a persisted file.
func New(opts ...Option) *Store {
	cfg := config{saveDelay: DefaultSaveDelay, logger: slog.Default(), clock: schedule.RealClock()}
	for _, opt := range opts {
		opt(&cfg)
	}

	hookOpts := []hooks.Option{hooks.WithLogger(cfg.logger)}
	if cfg.observer != nil {
		hookOpts = append(hookOpts, hooks.WithFireObserver(cfg.observer))
	}

	s := &Store{
		cfg:     cfg,
		values:  make(map[string]any),
		changes: hooks.New[Change]("options", hookOpts...),
	}
	merge(s.values, cfg.defaults)
	s.saver = schedule.NewDebouncer(func(struct{}) { s.persist() }, cfg.saveDelay, schedule.WithClock(cfg.clock))
	return s
}

// Load merges the persisted file over the current values. A missing file is
// not an error.
func (s *Store) Load() error {
	if s.cfg.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.cfg.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cfg.logger.Debug("Options file not found, using defaults", "path", s.cfg.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read options file: %w", err)
	}

	var loaded map[string]any
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("failed to parse options file %s: %w", s.cfg.path, err)
	}

	s.mu.Lock()
	merge(s.values, loaded)
	s.mu.Unlock()
	s.cfg.logger.Info("Options loaded", "path", s.cfg.path, "keys", len(loaded))
	return nil
}

// Get returns a copy of the value at key. An empty key returns the whole
// document.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := lookup(s.values, NormalizeKeys(key))
	return deepCopy(v), ok
}

// All returns a copy of the whole document.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.values).(map[string]any)
}

// Set stores value at key and notifies subscribers with {key: value}.
func (s *Store) Set(key string, value any) error {
	return s.SetAll(Change{key: value})
}

// SetAll applies every entry of changes and notifies subscribers once.
func (s *Store) SetAll(changes Change) error {
	if len(changes) == 0 {
		return nil
	}
	for key := range changes {
		if len(NormalizeKeys(key)) == 0 {
			return ErrEmptyKey
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	fired := make(Change, len(changes))
	for key, value := range changes {
		assign(s.values, NormalizeKeys(key), deepCopy(value))
		fired[key] = deepCopy(value)
	}
	s.mu.Unlock()

	s.cfg.logger.Debug("Options changed", "keys", len(changes))
	if s.cfg.path != "" {
		s.saver.Call(struct{}{})
	}
	s.changes.Fire(fired)
	return nil
}

// Hook subscribes fn to change notifications.
func (s *Store) Hook(fn func(Change)) hooks.Unsubscribe {
	return s.changes.Hook(fn)
}

// Flush writes a pending save immediately.
func (s *Store) Flush() {
	s.saver.Flush()
}

// Close flushes pending writes and rejects further changes.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.saver.Flush()
}

func (s *Store) persist() {
	if err := s.save(); err != nil {
		s.cfg.logger.Error("Failed to save options", "path", s.cfg.path, "error", err)
	}
}

func (s *Store) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	raw, err := yaml.Marshal(s.All())
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	dir := filepath.Dir(s.cfg.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create options directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".options-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write options: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write options: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.cfg.path); err != nil {
		return fmt.Errorf("failed to replace options file: %w", err)
	}
	s.cfg.logger.Debug("Options saved", "path", s.cfg.path)
	return nil
}
