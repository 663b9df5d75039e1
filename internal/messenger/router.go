package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/ctxbridge/internal/ctxlog"
)

// Message is the {cmd, data} payload convention understood by a Router.
type Message struct {
	Cmd  string `json:"cmd"`
	Data any    `json:"data,omitempty"`
}

// HandlerFunc serves one command. The returned value becomes the reply data,
// a returned error the reply error (see Remote for sending structured values).
type HandlerFunc func(ctx context.Context, data any) (any, error)

// DispatchObserver is told about every dispatched message.
type DispatchObserver func(cmd string, failed bool, elapsed time.Duration)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the fallback logger used when the dispatch context
// carries none.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithDispatchObserver registers a callback invoked after every dispatch.
func WithDispatchObserver(fn DispatchObserver) RouterOption {
	return func(r *Router) {
		r.observer = fn
	}
}

// Router maps command names to handlers. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	observer DispatchObserver
}

// NewRouter creates an empty Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{handlers: make(map[string]HandlerFunc)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for cmd. Registering the same command twice panics.
func (r *Router) Handle(cmd string, h HandlerFunc) {
	if cmd == "" || h == nil {
		panic("messenger: Handle needs a command name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[cmd]; exists {
		panic(fmt.Sprintf("messenger: command %q registered twice", cmd))
	}
	r.handlers[cmd] = h
}

// Commands lists the registered command names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]string, 0, len(r.handlers))
	for cmd := range r.handlers {
		cmds = append(cmds, cmd)
	}
	slices.Sort(cmds)
	return cmds
}

// Dispatch decodes payload, runs the matching handler and builds the reply.
// It never returns nil and never panics because of a handler.
func (r *Router) Dispatch(ctx context.Context, payload any) *Reply {
	start := time.Now()
	base := ctxlog.FromContext(ctx)
	if r.logger != nil && base == slog.Default() {
		base = r.logger
	}
	ctx = ctxlog.WithLogger(ctx, base)

	msg, err := decodeMessage(payload)
	if err != nil {
		base.Warn("Malformed message dropped", "error", err)
		r.observe("", true, start)
		return &Reply{Error: err.Error()}
	}

	ctx, logger := ctxlog.With(ctx, "requestId", uuid.NewString(), "cmd", msg.Cmd)

	r.mu.RLock()
	h, ok := r.handlers[msg.Cmd]
	r.mu.RUnlock()
	if !ok {
		logger.Warn("No handler for command")
		r.observe(msg.Cmd, true, start)
		return &Reply{Error: fmt.Sprintf("%s: %q", ErrUnknownCommand, msg.Cmd)}
	}

	logger.Debug("Dispatching message")
	reply := r.call(ctx, logger, h, msg.Data)
	r.observe(msg.Cmd, truthy(reply.Error), start)
	return reply
}

func (r *Router) call(ctx context.Context, logger *slog.Logger, h HandlerFunc, data any) (reply *Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Message handler panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			reply = &Reply{Error: fmt.Sprint(rec)}
		}
	}()

	out, err := h(ctx, data)
	if err != nil {
		logger.Debug("Message handler returned error", "error", err)
		return &Reply{Error: errorValue(err)}
	}
	return &Reply{Data: out}
}

func (r *Router) observe(cmd string, failed bool, start time.Time) {
	if r.observer != nil {
		r.observer(cmd, failed, time.Since(start))
	}
}

// decodeMessage accepts a Message, a decoded JSON object, or anything that
// JSON-encodes to one.
func decodeMessage(payload any) (Message, error) {
	switch p := payload.(type) {
	case Message:
		return p, nil
	case *Message:
		if p == nil {
			return Message{}, fmt.Errorf("nil message")
		}
		return *p, nil
	case map[string]any:
		cmd, _ := p["cmd"].(string)
		return Message{Cmd: cmd, Data: p["data"]}, nil
	case nil:
		return Message{}, fmt.Errorf("empty message")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode message: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("message is not an object: %w", err)
	}
	return msg, nil
}
