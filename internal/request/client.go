package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"
)

// Observer is told about every finished request.
type Observer func(method string, status int, elapsed time.Duration)

type clientOptions struct {
	logger     *slog.Logger
	httpClient *http.Client
	timeout    time.Duration
	observer   Observer
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithTimeout sets the default timeout for requests that do not set one.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithObserver registers a callback invoked after every request.
func WithObserver(fn Observer) Option {
	return func(o *clientOptions) {
		o.observer = fn
	}
}

// Client issues requests. It is safe for concurrent use.
type Client struct {
	rc        *resty.Client
	logger    *slog.Logger
	timeout   time.Duration
	observer  Observer
	closeOnce sync.Once
}

// newTransport returns the pooled transport used by default. file:// URLs are
// served from the local filesystem.
func newTransport() *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return t
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Transport: newTransport()}
	}
	return &Client{
		rc:       resty.NewWithClient(hc),
		logger:   o.logger,
		timeout:  o.timeout,
		observer: o.observer,
	}
}

// Close releases the client's resources.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rc.Close()
	})
	return err
}

// Do performs a single request. The returned Response is never nil. A non-nil
// error is always an *Error wrapping that same Response.
func (c *Client) Do(ctx context.Context, url string, opts Options) (*Response, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	rt := opts.ResponseType
	if rt == "" {
		rt = TypeText
	}
	logger := c.logger.With("method", method, "url", url)
	logger.Debug("Making HTTP request", "responseType", rt)

	start := time.Now()
	res := &Response{URL: url}

	headers, body, err := prepare(opts.Headers, opts.Body)
	if err != nil {
		res.Status = StatusFailed
		res.Data = decode(rt, nil)
		return c.finish(logger, method, start, res, fmt.Errorf("failed to encode body: %w", err))
	}

	req := c.rc.R().SetContext(ctx)
	for k, v := range headers {
		req.SetHeader(k, v[0])
	}
	if body != nil {
		req.SetBody(body)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		req.SetTimeout(timeout)
	}

	raw, err := req.Execute(method, url)
	res.Raw = raw
	if err != nil {
		res.Status = StatusFailed
		res.Data = decode(rt, nil)
		return c.finish(logger, method, start, res, err)
	}

	res.Status = raw.StatusCode()
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	res.Data = decode(rt, raw.Bytes())
	return c.finish(logger, method, start, res, nil)
}

func (c *Client) finish(logger *slog.Logger, method string, start time.Time, res *Response, transportErr error) (*Response, error) {
	elapsed := time.Since(start)
	if c.observer != nil {
		c.observer(method, res.Status, elapsed)
	}
	if transportErr != nil {
		logger.Debug("HTTP request failed", "error", transportErr, "elapsed", elapsed)
		return res, &Error{Response: res, Err: transportErr}
	}
	logger.Debug("Received HTTP response", "status", res.Status, "elapsed", elapsed)
	if !res.OK() {
		return res, &Error{Response: res}
	}
	return res, nil
}

// ErrUnsupportedBody is returned for a body that is neither raw content, a
// scalar nor a plain object.
var ErrUnsupportedBody = errors.New("unsupported request body")

// prepare copies the caller headers and encodes the body. Maps and structs
// are JSON encoded; their Content-Type is applied after the copy, so it wins
// over a caller value. Scalars are sent in their text form.
func prepare(in map[string]string, body any) (http.Header, any, error) {
	headers := make(http.Header, len(in)+1)
	for k, v := range in {
		headers.Set(k, v)
	}

	switch b := body.(type) {
	case nil:
		return headers, nil, nil
	case string, []byte:
		return headers, b, nil
	case io.Reader:
		return headers, b, nil
	}

	v := reflect.ValueOf(body)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Struct:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		headers.Set("Content-Type", "application/json")
		return headers, encoded, nil
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return headers, fmt.Sprint(v.Interface()), nil
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedBody, body)
	}
}

// decode shapes the body for Response.Data.
func decode(rt ResponseType, raw []byte) any {
	if rt.binary() {
		if raw == nil {
			return []byte{}
		}
		return raw
	}
	text := string(raw)
	if rt == TypeJSON {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return text
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the shared client used by Do.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = NewClient()
	})
	return defaultClient
}

// Do performs a request with the default client.
func Do(ctx context.Context, url string, opts Options) (*Response, error) {
	return Default().Do(ctx, url, opts)
}
