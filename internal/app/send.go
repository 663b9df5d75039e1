package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/ctxbridge/internal/messenger"
)

// send performs one round-trip to a running host and prints the reply data
// as JSON.
func (a *App) send(ctx context.Context) error {
	cfg := a.config
	logger := a.logger.With("url", cfg.URL, "cmd", cfg.Cmd)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	io, err := messenger.Dial(ctx, cfg.URL, messenger.DialOptions{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Timeout:            cfg.Timeout,
	})
	if err != nil {
		return err
	}
	transport := messenger.NewSocketTransport(io, "")
	defer transport.Close()

	m := messenger.New(transport,
		messenger.WithLogger(logger),
		messenger.WithDebug(cfg.Debug),
		messenger.WithObserver(a.metrics.SendObserver()),
	)

	logger.Debug("Sending message")
	data, err := m.Send(ctx, messenger.Message{Cmd: cfg.Cmd, Data: cfg.Data})
	if err != nil {
		return fmt.Errorf("%s failed: %w", cfg.Cmd, err)
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	fmt.Fprintln(a.outW, string(out))
	return nil
}
