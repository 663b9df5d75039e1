package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/ctxbridge/internal/hooks"
	"github.com/vk/ctxbridge/internal/schedule"
)

// DefaultReloadDelay collapses the burst of events editors produce on save.
const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads a config file when it changes and announces every
// successfully decoded version to its subscribers.
type Watcher struct {
	path     string
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	reloads  *hooks.Registry[*File]
	debounce *schedule.Debouncer[context.Context]

	mu      sync.RWMutex
	current *File

	closeOnce sync.Once
}

// WatchOption configures a Watcher.
type WatchOption func(*watchConfig)

type watchConfig struct {
	delay  time.Duration
	logger *slog.Logger
	clock  schedule.Clock
}

// WithReloadDelay sets the debounce interval of reloads.
func WithReloadDelay(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		c.delay = d
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		c.logger = logger
	}
}

// WithWatchClock sets the clock driving the reload debouncer.
func WithWatchClock(clock schedule.Clock) WatchOption {
	return func(c *watchConfig) {
		c.clock = clock
	}
}

// NewWatcher starts watching the directory of path; initial is the version
// already loaded by the caller. Call Run to process events.
func NewWatcher(path string, initial *File, opts ...WatchOption) (*Watcher, error) {
	cfg := watchConfig{delay: DefaultReloadDelay, logger: slog.Default(), clock: schedule.RealClock()}
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors replace files by rename, so the directory is watched.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:    abs,
		logger:  cfg.logger.With("file", abs),
		fsw:     fsw,
		reloads: hooks.New[*File]("config", hooks.WithLogger(cfg.logger)),
		current: initial,
	}
	w.debounce = schedule.NewDebouncer(w.reload, cfg.delay, schedule.WithClock(cfg.clock))
	return w, nil
}

// Hook subscribes fn to reloaded versions of the file.
func (w *Watcher) Hook(fn func(*File)) hooks.Unsubscribe {
	return w.reloads.Hook(fn)
}

// Current returns the last successfully loaded version.
func (w *Watcher) Current() *File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("Config watcher started")
	defer w.debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Config watcher stopped")
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.debounce.Stop()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("Config file event", "op", event.Op.String())
	w.debounce.Call(ctx)
}

func (w *Watcher) reload(ctx context.Context) {
	file, err := Load(ctx, w.path)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous version", "error", err)
		return
	}
	w.mu.Lock()
	w.current = file
	w.mu.Unlock()
	w.logger.Info("Config reloaded")
	w.reloads.Fire(file)
}
