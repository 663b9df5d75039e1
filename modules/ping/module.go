package ping

import (
	"context"

	"github.com/vk/ctxbridge/internal/ctxlog"
	"github.com/vk/ctxbridge/internal/messenger"
)

// Reply is the data of a successful Ping.
const Reply = "pong"

// Module implements the messenger.Module interface for this package.
type Module struct{}

// Register adds Ping, a liveness round-trip, and Commands, which lists what
// the host serves.
func (m *Module) Register(r *messenger.Router) {
	r.Handle("Ping", func(ctx context.Context, _ any) (any, error) {
		ctxlog.FromContext(ctx).Debug("Ping received")
		return Reply, nil
	})
	r.Handle("Commands", func(context.Context, any) (any, error) {
		return r.Commands(), nil
	})
}
