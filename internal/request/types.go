package request

import (
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

// StatusFailed is the Status of a request that never got an HTTP response:
// network error, abort or timeout.
const StatusFailed = -1

// ResponseType selects how the response body is presented in Response.Data.
type ResponseType string

const (
	// TypeText delivers the body as a string. It is the default.
	TypeText ResponseType = "text"
	// TypeJSON decodes the body as JSON, keeping the raw string when that fails.
	TypeJSON ResponseType = "json"
	// TypeBlob delivers the raw body bytes.
	TypeBlob ResponseType = "blob"
	// TypeArrayBuffer delivers the raw body bytes.
	TypeArrayBuffer ResponseType = "arraybuffer"
)

// ParseResponseType validates a response type name. The empty string maps to
// TypeText.
func ParseResponseType(s string) (ResponseType, error) {
	switch rt := ResponseType(strings.ToLower(s)); rt {
	case "":
		return TypeText, nil
	case TypeText, TypeJSON, TypeBlob, TypeArrayBuffer:
		return rt, nil
	default:
		return "", fmt.Errorf("unknown response type %q", s)
	}
}

func (rt ResponseType) binary() bool {
	return rt == TypeBlob || rt == TypeArrayBuffer
}

// Options configures one request.
type Options struct {
	// Method defaults to GET.
	Method string
	// Headers are copied onto the request before any automatic headers.
	Headers map[string]string
	// Body is sent as is for string, []byte and io.Reader. Maps and structs
	// are JSON encoded, numbers and bools go as text, anything else fails
	// with ErrUnsupportedBody.
	Body any
	// ResponseType defaults to TypeText.
	ResponseType ResponseType
	// Timeout bounds the whole request. Zero means the client default.
	Timeout time.Duration
}

// Response is the unified result of a request.
type Response struct {
	URL string
	// Data is a string (text, or json that failed to decode), a []byte
	// (blob, arraybuffer), or the decoded JSON value.
	Data any
	// Status is the HTTP status, 200 when the transport reported none, or
	// StatusFailed.
	Status int
	// Raw is the transport handle; nil if the request could not be built.
	Raw *resty.Response
}

// OK reports whether the response counts as a success.
func (r *Response) OK() bool {
	return r.Status != StatusFailed && r.Status <= 300
}

// Error is returned for failed requests. It embeds the full Response.
type Error struct {
	*Response
	// Err is the transport error for StatusFailed, nil otherwise.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s failed with status %d", e.URL, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}
