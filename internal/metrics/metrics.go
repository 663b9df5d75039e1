// Package metrics exposes Prometheus collectors for hooks, messages and
// requests, and adapts them to the observer callbacks of those packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/ctxbridge/internal/hooks"
	"github.com/vk/ctxbridge/internal/messenger"
	"github.com/vk/ctxbridge/internal/request"
)

const namespace = "ctxbridge"

// Metrics holds all collectors of one process. Each instance has its own
// registry, so several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	HookFires           *prometheus.CounterVec
	HookSubscriberFails *prometheus.CounterVec

	MessagesSent *prometheus.CounterVec

	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered, plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HookFires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_fires_total",
				Help:      "Total number of hook fires",
			},
			[]string{"hook"},
		),
		HookSubscriberFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_subscriber_failures_total",
				Help:      "Total number of hook subscribers that panicked",
			},
			[]string{"hook"},
		),

		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent, by outcome",
			},
			[]string{"cmd", "outcome"},
		),

		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of messages dispatched to handlers",
			},
			[]string{"cmd", "outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of message handlers in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"cmd"},
		),

		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests, by method and status class",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterGauge exposes fn as a gauge, e.g. the number of connected contexts.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

// HookObserver counts fires and failed subscribers.
func (m *Metrics) HookObserver() hooks.FireObserver {
	return func(name string, _, failed int) {
		m.HookFires.WithLabelValues(name).Inc()
		if failed > 0 {
			m.HookSubscriberFails.WithLabelValues(name).Add(float64(failed))
		}
	}
}

// SendObserver counts messages sent by a Messenger.
func (m *Metrics) SendObserver() messenger.Observer {
	return func(cmd string, err error) {
		m.MessagesSent.WithLabelValues(cmd, outcome(err != nil)).Inc()
	}
}

// DispatchObserver counts and times Router dispatches.
func (m *Metrics) DispatchObserver() messenger.DispatchObserver {
	return func(cmd string, failed bool, elapsed time.Duration) {
		m.Dispatches.WithLabelValues(cmd, outcome(failed)).Inc()
		m.DispatchDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())
	}
}

// RequestObserver counts and times request.Client calls.
func (m *Metrics) RequestObserver() request.Observer {
	return func(method string, status int, elapsed time.Duration) {
		m.Requests.WithLabelValues(method, StatusClass(status)).Inc()
		m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// StatusClass buckets a request status into "2xx".."5xx", or "failed" for
// request.StatusFailed.
func StatusClass(status int) string {
	if status == request.StatusFailed {
		return "failed"
	}
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
