package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vk/ctxbridge/internal/ctxlog"
	"github.com/vk/ctxbridge/internal/messenger"
	"github.com/vk/ctxbridge/internal/request"
)

// Module implements the messenger.Module interface for this package.
type Module struct {
	Client *request.Client
	// AllowLocal permits file:, data: and http://localhost URLs.
	AllowLocal bool
	// Timeout applies when the caller does not set one.
	Timeout time.Duration
}

// Input is the data of a Fetch message.
type Input struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         any               `json:"body,omitempty"`
	ResponseType string            `json:"responseType,omitempty"`
	Timeout      string            `json:"timeout,omitempty"`
}

// EncodingBase64 marks Output.Data as base64 text of a binary body.
const EncodingBase64 = "base64"

// Output is the reply data of a Fetch, and the error value of a failed one.
type Output struct {
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Data     any    `json:"data"`
	Encoding string `json:"encoding,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Register adds Fetch.
func (m *Module) Register(r *messenger.Router) {
	r.Handle("Fetch", m.fetch)
}

func (m *Module) fetch(ctx context.Context, data any) (any, error) {
	in, err := decodeInput(data)
	if err != nil {
		return nil, messenger.Remote(err.Error())
	}
	if in.URL == "" {
		return nil, messenger.Remote("Fetch: url is required")
	}
	if !m.AllowLocal && !request.IsRemote(in.URL) {
		return nil, messenger.Remote(fmt.Sprintf("Fetch: local URL %q is not allowed", in.URL))
	}

	opts, err := m.options(in)
	if err != nil {
		return nil, messenger.Remote(err.Error())
	}

	logger := ctxlog.FromContext(ctx).With("url", in.URL)
	logger.Info("Fetching on behalf of context", "method", opts.Method, "responseType", opts.ResponseType)

	res, err := m.Client.Do(ctx, in.URL, opts)
	if err != nil {
		var reqErr *request.Error
		if errors.As(err, &reqErr) {
			return nil, messenger.Remote(toMap(Output{
				URL:     reqErr.URL,
				Status:  reqErr.Status,
				Data:    reqErr.Data,
				Message: reqErr.Error(),
			}))
		}
		return nil, err
	}
	return toMap(Output{URL: res.URL, Status: res.Status, Data: res.Data}), nil
}

func (m *Module) options(in *Input) (request.Options, error) {
	rt, err := request.ParseResponseType(in.ResponseType)
	if err != nil {
		return request.Options{}, fmt.Errorf("Fetch: %w", err)
	}
	timeout := m.Timeout
	if in.Timeout != "" {
		if timeout, err = time.ParseDuration(in.Timeout); err != nil {
			return request.Options{}, fmt.Errorf("Fetch: invalid timeout: %w", err)
		}
	}
	return request.Options{
		Method:       in.Method,
		Headers:      in.Headers,
		Body:         in.Body,
		ResponseType: rt,
		Timeout:      timeout,
	}, nil
}

func decodeInput(data any) (*Input, error) {
	if s, ok := data.(string); ok {
		return &Input{URL: s}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("Fetch: failed to encode data: %w", err)
	}
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("Fetch: data must be a URL or an object: %w", err)
	}
	return &in, nil
}

// toMap renders o the way it arrives on the other side of the channel. Binary
// data is encoded here so every transport delivers the same string.
func toMap(o Output) map[string]any {
	if b, ok := o.Data.([]byte); ok {
		o.Data = base64.StdEncoding.EncodeToString(b)
		o.Encoding = EncodingBase64
	}
	out := map[string]any{
		"url":    o.URL,
		"status": o.Status,
		"data":   o.Data,
	}
	if o.Encoding != "" {
		out["encoding"] = o.Encoding
	}
	if o.Message != "" {
		out["message"] = o.Message
	}
	return out
}
