package messenger

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/vk/ctxbridge/internal/ctxlog"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// Host answers socket.io messages with a Router. It is the background side of
// the channel.
type Host struct {
	ctx       context.Context
	server    *sio.Server
	router    *Router
	event     string
	connected atomic.Int64
	closeOnce sync.Once
}

// NewHost creates a Host dispatching MessageEvent payloads to router. ctx is
// the base context of every dispatch and carries the logger.
func NewHost(ctx context.Context, router *Router) *Host {
	h := &Host{
		ctx:    ctx,
		server: sio.NewServer(nil, nil),
		router: router,
		event:  MessageEvent,
	}
	h.server.On("connection", h.onConnection)
	return h
}

// Handler returns the HTTP handler serving the socket.io endpoint. Mount it
// under /socket.io/.
func (h *Host) Handler() http.Handler {
	return h.server.ServeHandler(nil)
}

// Connected reports the number of connected contexts.
func (h *Host) Connected() int {
	return int(h.connected.Load())
}

// Broadcast emits event with data to every connected context.
func (h *Host) Broadcast(event string, data any) {
	ctxlog.FromContext(h.ctx).Debug("Broadcasting event", "event", event, "clients", h.Connected())
	h.server.Emit(event, data)
}

// Close disconnects all clients and stops the server.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.server.Close(nil)
	})
}

func (h *Host) onConnection(clients ...any) {
	if len(clients) == 0 {
		return
	}
	client, ok := clients[0].(*sio.Socket)
	if !ok {
		return
	}
	logger := ctxlog.FromContext(h.ctx).With("sid", string(client.Id()))
	h.connected.Add(1)
	logger.Info("Context connected")

	client.On(h.event, func(args ...any) {
		h.onMessage(logger, args)
	})
	client.On("disconnect", func(reason ...any) {
		h.connected.Add(-1)
		logger.Info("Context disconnected", "reason", reason)
	})
}

func (h *Host) onMessage(logger *slog.Logger, args []any) {
	if len(args) == 0 {
		return
	}
	ack, ok := args[len(args)-1].(sio.Ack)
	if !ok {
		logger.Warn("Message without acknowledgement dropped")
		return
	}
	var payload any
	if len(args) > 1 {
		payload = args[0]
	}

	ctx := ctxlog.WithLogger(h.ctx, logger)
	go func() {
		reply := h.router.Dispatch(ctx, payload)
		ack([]any{reply.Map()}, nil)
	}()
}
