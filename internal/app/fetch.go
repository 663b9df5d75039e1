package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/ctxbridge/internal/request"
)

// fetch performs one request and prints the status line followed by the
// data. Binary data is written raw.
func (a *App) fetch(ctx context.Context) error {
	cfg := a.config

	rt, err := request.ParseResponseType(cfg.ResponseType)
	if err != nil {
		return err
	}

	client := request.NewClient(
		request.WithLogger(a.logger),
		request.WithObserver(a.metrics.RequestObserver()),
	)
	defer client.Close()

	res, err := client.Do(ctx, cfg.FetchURL, request.Options{
		Method:       cfg.Method,
		Headers:      cfg.Headers,
		Body:         cfg.Body,
		ResponseType: rt,
		Timeout:      cfg.Timeout,
	})

	var reqErr *request.Error
	if err != nil && !errors.As(err, &reqErr) {
		return err
	}

	fmt.Fprintf(a.outW, "%d %s\n", res.Status, res.URL)
	if werr := a.writeData(res.Data); werr != nil {
		return werr
	}
	return err
}

func (a *App) writeData(data any) error {
	switch d := data.(type) {
	case string:
		_, err := fmt.Fprintln(a.outW, d)
		return err
	case []byte:
		_, err := a.outW.Write(d)
		return err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	_, err = fmt.Fprintln(a.outW, string(out))
	return err
}
