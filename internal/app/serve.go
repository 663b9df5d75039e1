package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/ctxbridge/internal/config"
	"github.com/vk/ctxbridge/internal/messenger"
	"github.com/vk/ctxbridge/internal/options"
	"github.com/vk/ctxbridge/internal/request"
	"github.com/vk/ctxbridge/internal/schedule"
)

// serve runs the background host until ctx is cancelled.
func (a *App) serve(ctx context.Context) error {
	cfg := a.config
	logger := a.logger

	client := request.NewClient(
		request.WithLogger(logger),
		request.WithObserver(a.metrics.RequestObserver()),
	)
	defer client.Close()

	storeOpts := []options.Option{
		options.WithLogger(logger),
		options.WithDefaults(cfg.Defaults),
		options.WithFireObserver(a.metrics.HookObserver()),
	}
	if cfg.OptionsFile != "" {
		storeOpts = append(storeOpts, options.WithFile(cfg.OptionsFile))
	}
	if cfg.SaveDelay > 0 {
		storeOpts = append(storeOpts, options.WithSaveDelay(cfg.SaveDelay))
	}
	store := options.New(storeOpts...)
	if err := store.Load(); err != nil {
		return err
	}
	defer store.Close()

	router := messenger.NewRouter(
		messenger.WithRouterLogger(logger),
		messenger.WithDispatchObserver(a.metrics.DispatchObserver()),
	)
	messenger.RegisterAll(router, coreModules(store, client, cfg)...)

	host := messenger.NewHost(ctx, router)
	defer host.Close()
	a.metrics.RegisterGauge("connected_contexts", "Number of connected contexts", func() float64 {
		return float64(host.Connected())
	})

	// The snapshot is taken at delivery, so a throttled burst still
	// broadcasts the latest state.
	broadcaster := schedule.NewThrottler(func(struct{}) {
		host.Broadcast(cfg.BroadcastEvent, store.All())
	}, cfg.BroadcastThrottle)
	defer broadcaster.Stop()
	unhook := store.Hook(func(options.Change) {
		broadcaster.Call(struct{}{})
	})
	defer unhook()

	if cfg.ConfigFile != "" {
		watcher, err := a.watchConfig(ctx)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	if cfg.HealthcheckPort > 0 {
		status, err := a.startStatusServer(fmt.Sprintf(":%d", cfg.HealthcheckPort), statusHandler(host, router, time.Now()))
		if err != nil {
			return err
		}
		defer status.Close()
	}

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", host.Handler())

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	a.setAddr(ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	logger.Info("Host listening", "address", ln.Addr().String(), "commands", router.Commands(), "debug", cfg.Debug)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down host...")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("host server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("host shutdown failed: %w", err)
	}
	return nil
}

// watchConfig reloads the config file on change. Only the log level is
// applied live; everything else needs a restart.
func (a *App) watchConfig(ctx context.Context) (*config.Watcher, error) {
	initial, err := config.Load(ctx, a.config.ConfigFile)
	if err != nil {
		return nil, err
	}
	watcher, err := config.NewWatcher(a.config.ConfigFile, initial, config.WithWatchLogger(a.logger))
	if err != nil {
		return nil, err
	}
	watcher.Hook(func(f *config.File) {
		if f.LogLevel != "" {
			a.level.Set(parseLevel(f.LogLevel))
			a.logger.Info("Log level changed", "level", f.LogLevel)
		}
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			a.logger.Error("Config watcher failed", "error", err)
		}
	}()
	return watcher, nil
}
