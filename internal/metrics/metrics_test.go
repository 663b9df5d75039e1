package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ctxbridge/internal/hooks"
)

func TestHookObserver(t *testing.T) {
	m := New()
	reg := hooks.New[int]("opts", hooks.WithFireObserver(m.HookObserver()))
	reg.Hook(func(int) {})
	reg.Hook(func(int) { panic("x") })

	reg.Fire(1)
	reg.Fire(2)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.HookFires.WithLabelValues("opts")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.HookSubscriberFails.WithLabelValues("opts")))
}

func TestSendAndDispatchObservers(t *testing.T) {
	m := New()

	m.SendObserver()("Ping", nil)
	m.SendObserver()("Ping", errors.New("x"))
	m.DispatchObserver()("Ping", false, time.Millisecond)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.MessagesSent.WithLabelValues("Ping", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.MessagesSent.WithLabelValues("Ping", "error")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Dispatches.WithLabelValues("Ping", "ok")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "3xx", StatusClass(304))
	assert.Equal(t, "5xx", StatusClass(503))
	assert.Equal(t, "failed", StatusClass(-1))
	assert.Equal(t, "42", StatusClass(42))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RequestObserver()("GET", 404, 10*time.Millisecond)
	m.RegisterGauge("connected_contexts", "Connected contexts", func() float64 { return 3 })

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ctxbridge_requests_total{method="GET",status="4xx"} 1`)
	assert.Contains(t, string(body), "ctxbridge_connected_contexts 3")
	assert.Contains(t, string(body), "go_goroutines")
}
