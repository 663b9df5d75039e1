package messenger

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/vk/ctxbridge/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// MessageEvent is the socket.io event carrying request payloads.
const MessageEvent = "message"

// DefaultDialTimeout bounds the initial connection when DialOptions has none.
const DefaultDialTimeout = 15 * time.Second

// DefaultNamespace is the namespace the Host serves.
const DefaultNamespace = "/"

// DialOptions controls how Dial connects. The zero value dials
// DefaultNamespace with DefaultDialTimeout.
type DialOptions struct {
	Namespace          string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Dial connects a socket.io client to a Host and waits for the connection.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)
	logger.Debug("Connecting to host")

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("URL %q needs a scheme and a host", rawURL)
	}

	sopts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		sopts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	connected := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(namespace, sopts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to host", "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", errs[0])
			}
		}
		select {
		case connected <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// SocketTransport sends payloads over a connected socket.io client and reads
// the reply from the acknowledgement.
type SocketTransport struct {
	io     *socket.Socket
	event  string
	logger *slog.Logger
}

// NewSocketTransport wraps a connected client socket. An empty event means
// MessageEvent.
func NewSocketTransport(io *socket.Socket, event string) *SocketTransport {
	if event == "" {
		event = MessageEvent
	}
	return &SocketTransport{io: io, event: event, logger: slog.Default()}
}

type ackResult struct {
	reply *Reply
	err   error
}

// RoundTrip implements Transport.
func (t *SocketTransport) RoundTrip(ctx context.Context, payload any) (*Reply, error) {
	if t.io == nil || !t.io.Connected() {
		return nil, ErrNotConnected
	}
	logger := ctxlog.FromContext(ctx).With("sid", t.io.Id(), "event", t.event)
	logger.Debug("Emitting message")

	done := make(chan ackResult, 1)
	t.io.EmitWithAck(t.event, payload)(func(args []any, err error) {
		if err != nil {
			done <- ackResult{err: err}
			return
		}
		var first any
		if len(args) > 0 {
			first = args[0]
		}
		done <- ackResult{reply: replyFrom(first)}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			logger.Debug("Acknowledgement failed", "error", res.err)
			return nil, res.err
		}
		return res.reply, nil
	}
}

// Close disconnects the underlying socket.
func (t *SocketTransport) Close() error {
	if t.io != nil {
		t.logger.Debug("Disconnecting socket client", "sid", t.io.Id())
		t.io.Disconnect()
	}
	return nil
}
