package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vk/ctxbridge/internal/messenger"
)

// hostStatus is the body served on /health.
type hostStatus struct {
	Status   string   `json:"status"`
	Contexts int      `json:"contexts"`
	Commands []string `json:"commands"`
	Uptime   string   `json:"uptime"`
}

// statusHandler reports the host's live state.
func statusHandler(host *messenger.Host, router *messenger.Router, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hostStatus{
			Status:   "ok",
			Contexts: host.Connected(),
			Commands: router.Commands(),
			Uptime:   time.Since(started).Round(time.Second).String(),
		})
	}
}

// statusServer serves /health and /metrics next to the host.
type statusServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// startStatusServer binds addr before returning, so a taken port fails serve.
func (a *App) startStatusServer(addr string, health http.Handler) (*statusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for health checks on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", a.metrics.Handler())

	s := &statusServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		ln:     ln,
		logger: a.logger.With("address", ln.Addr().String()),
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", "error", err)
		}
	}()
	s.logger.Info("Status server listening", "paths", []string{"/health", "/metrics"})
	return s, nil
}

// Addr is the bound address.
func (s *statusServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *statusServer) Close() error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	s.logger.Debug("Status server stopped")
	return nil
}
