package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vk/ctxbridge/internal/ctxlog"
	"github.com/vk/ctxbridge/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	level      *slog.LevelVar
	config     *Config
	metrics    *metrics.Metrics

	mu   sync.Mutex
	addr string
}

// NewApp is the constructor for the main application. Command results go to
// outW, logs to logW.
func NewApp(outW, logW io.Writer, cfg *Config) *App {
	logger, level := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	return &App{
		ctx:     context.Background(),
		outW:    outW,
		logger:  logger,
		level:   level,
		config:  cfg,
		metrics: metrics.New(),
	}
}

// Run executes the configured command until it finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.", "command", a.config.Command)
	defer a.logger.Debug("App.Run method finished.")

	switch a.config.Command {
	case CommandServe:
		return a.serve(ctx)
	case CommandSend:
		return a.send(ctx)
	case CommandFetch:
		return a.fetch(ctx)
	default:
		return fmt.Errorf("unknown command %q", a.config.Command)
	}
}

// Addr returns the address the host listens on once serve is running.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *App) setAddr(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addr = addr
}

// Metrics returns the application's metrics. This is primarily for testing.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}
