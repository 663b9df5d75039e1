package options

import (
	"context"
	"fmt"

	"github.com/vk/ctxbridge/internal/ctxlog"
	"github.com/vk/ctxbridge/internal/messenger"
	store "github.com/vk/ctxbridge/internal/options"
)

// Module implements the messenger.Module interface for this package.
type Module struct {
	Store *store.Store
}

// Register adds GetOptions and SetOptions.
func (m *Module) Register(r *messenger.Router) {
	r.Handle("GetOptions", m.getOptions)
	r.Handle("SetOptions", m.setOptions)
}

// getOptions accepts no data (whole document), a dotted key, or a list of
// keys (object of key to value).
func (m *Module) getOptions(_ context.Context, data any) (any, error) {
	switch d := data.(type) {
	case nil:
		return m.Store.All(), nil
	case string:
		v, _ := m.Store.Get(d)
		return v, nil
	case []any:
		out := make(map[string]any, len(d))
		for _, k := range d {
			key, ok := k.(string)
			if !ok {
				return nil, messenger.Remote(fmt.Sprintf("GetOptions: key must be a string, got %T", k))
			}
			out[key], _ = m.Store.Get(key)
		}
		return out, nil
	}
	return nil, messenger.Remote(fmt.Sprintf("GetOptions: unsupported data %T", data))
}

// setOptions applies an object of dotted keys to values.
func (m *Module) setOptions(ctx context.Context, data any) (any, error) {
	changes, ok := data.(map[string]any)
	if !ok {
		return nil, messenger.Remote(fmt.Sprintf("SetOptions: data must be an object, got %T", data))
	}
	if err := m.Store.SetAll(store.Change(changes)); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("Options updated", "keys", len(changes))
	return nil, nil
}
