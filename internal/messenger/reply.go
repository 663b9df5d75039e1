package messenger

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// Reply is what a receiving context sends back for one payload.
type Reply struct {
	Data  any `json:"data,omitempty"`
	Error any `json:"error,omitempty"`
}

// Map renders the reply for transports that encode maps, omitting nil fields.
func (r *Reply) Map() map[string]any {
	out := make(map[string]any, 2)
	if r == nil {
		return out
	}
	if r.Data != nil {
		out["data"] = r.Data
	}
	if r.Error != nil {
		out["error"] = r.Error
	}
	return out
}

// replyFrom reads a reply out of a decoded value. Anything that is not an
// object counts as an empty reply.
func replyFrom(v any) *Reply {
	switch r := v.(type) {
	case *Reply:
		if r != nil {
			return r
		}
	case Reply:
		return &r
	case map[string]any:
		return &Reply{Data: r["data"], Error: r["error"]}
	}
	return &Reply{}
}

// RemoteError carries an error value produced by the receiving context. The
// value is opaque: a string, a number, an object decoded into a map, or
// whatever the handler chose.
type RemoteError struct {
	Value any
}

// Remote wraps value so that a handler returning it sends value verbatim as
// the reply error.
func Remote(value any) error {
	return &RemoteError{Value: value}
}

func (e *RemoteError) Error() string {
	switch v := e.Value.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("%v", e.Value)
}

// errorValue turns a handler error into the value placed in Reply.Error.
func errorValue(err error) any {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Value
	}
	return err.Error()
}

// truthy follows the JavaScript notion of truthiness the reply protocol was
// defined with: nil, false, "", 0 and NaN are falsy, everything else
// (including empty objects) is truthy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint:
		return x != 0
	case uint64:
		return x != 0
	case uint32:
		return x != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}
