package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrDelivery wraps every failure of the transport itself: no receiver,
	// disconnect, encoding failure.
	ErrDelivery = errors.New("messenger: delivery failed")
	// ErrUnknownCommand is reported by a Router for unregistered commands.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotConnected is returned by transports whose channel is down.
	ErrNotConnected = errors.New("not connected")
)

// Transport delivers one payload to the counterpart context and returns its
// reply. A nil reply with a nil error is treated as an empty reply.
type Transport interface {
	RoundTrip(ctx context.Context, payload any) (*Reply, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, payload any) (*Reply, error)

// RoundTrip implements Transport.
func (f TransportFunc) RoundTrip(ctx context.Context, payload any) (*Reply, error) {
	return f(ctx, payload)
}

// Observer is told about every finished Send.
type Observer func(cmd string, err error)

type options struct {
	logger   *slog.Logger
	debug    bool
	observer Observer
}

// Option configures a Messenger.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDebug turns on logging of failed sends. The failure is still returned
// to the caller.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithObserver registers a callback invoked after every Send.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// Messenger is the sending side of a round-trip.
type Messenger struct {
	transport Transport
	opts      options
}

// New creates a Messenger on top of transport.
func New(transport Transport, opts ...Option) *Messenger {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Messenger{transport: transport, opts: o}
}

// Send delivers payload and waits for the reply. It returns the reply data,
// or a *RemoteError when the reply carries an error, or an ErrDelivery error
// when the transport failed.
func (m *Messenger) Send(ctx context.Context, payload any) (any, error) {
	data, err := m.roundTrip(ctx, payload)
	m.observe(payload, err)
	return data, err
}

func (m *Messenger) roundTrip(ctx context.Context, payload any) (any, error) {
	reply, err := m.transport.RoundTrip(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if reply == nil {
		reply = &Reply{}
	}
	if truthy(reply.Error) {
		return nil, &RemoteError{Value: reply.Error}
	}
	return reply.Data, nil
}

// observe runs after the result is settled and never changes it.
func (m *Messenger) observe(payload any, err error) {
	cmd := commandOf(payload)
	if m.opts.observer != nil {
		m.opts.observer(cmd, err)
	}
	if err != nil && m.opts.debug {
		m.opts.logger.Warn("Message rejected", "cmd", cmd, "error", err)
	}
}

// commandOf extracts the command name for logs, if the payload has one.
func commandOf(payload any) string {
	switch p := payload.(type) {
	case Message:
		return p.Cmd
	case *Message:
		if p != nil {
			return p.Cmd
		}
	case map[string]any:
		if cmd, ok := p["cmd"].(string); ok {
			return cmd
		}
	}
	return ""
}
