package messenger

import (
	"context"
	"encoding/json"
	"fmt"
)

// Loopback is an in-process Transport that hands payloads to a Router. Payload
// and reply are passed through a JSON encoding, so both sides only ever see
// plain decoded values, as they would across a real channel.
type Loopback struct {
	router *Router
}

// NewLoopback connects a Transport to router.
func NewLoopback(router *Router) *Loopback {
	return &Loopback{router: router}
}

// RoundTrip implements Transport. The handler runs on its own goroutine; when
// ctx ends first the reply is discarded.
func (l *Loopback) RoundTrip(ctx context.Context, payload any) (*Reply, error) {
	sent, err := cloneJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	done := make(chan any, 1)
	go func() {
		done <- l.router.Dispatch(ctx, sent).Map()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw := <-done:
		received, err := cloneJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode reply: %w", err)
		}
		return replyFrom(received), nil
	}
}

func cloneJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
