// Package metrics exposes Prometheus collectors for the router, the AI
// responder and the HTTP gateway.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/jibby/internal/hooks"
)

var (
	// EventsTotal counts bus events by name.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jibby",
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Total events published on the bus",
		},
		[]string{"event"},
	)

	// MessagesTotal counts messages by channel and direction.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jibby",
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Total messages routed",
		},
		[]string{"channel", "direction"},
	)

	// ErrorsTotal counts error events by stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jibby",
			Subsystem: "router",
			Name:      "errors_total",
			Help:      "Total error events",
		},
		[]string{"stage"},
	)

	// CallsTotal counts voice call events by status.
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jibby",
			Subsystem: "voice",
			Name:      "calls_total",
			Help:      "Total call lifecycle events",
		},
		[]string{"event", "status"},
	)

	// TokensTotal counts LLM tokens by kind.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jibby",
			Subsystem: "ai",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"provider", "kind"},
	)

	// RequestsTotal counts HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jibby",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jibby",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	// WSConnections tracks open WebSocket clients.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jibby",
			Subsystem: "gateway",
			Name:      "ws_connections",
			Help:      "Open WebSocket connections",
		},
	)
)

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request.
func RecordRequest(method, route string, status int, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Attach counts every event published on m.
func Attach(m *hooks.Manager) {
	m.OnAny("metrics", func(_ context.Context, ev hooks.Event) error {
		Observe(ev)
		return nil
	})
}

// Observe updates the collectors for one event.
func Observe(ev hooks.Event) {
	EventsTotal.WithLabelValues(ev.Name).Inc()

	switch ev.Name {
	case hooks.EventMessage:
		if ev.Message != nil {
			MessagesTotal.WithLabelValues(string(ev.Message.Channel), "inbound").Inc()
		}
	case hooks.EventMessageSent:
		if ev.Message != nil {
			MessagesTotal.WithLabelValues(string(ev.Message.Channel), "outbound").Inc()
		}
	case hooks.EventError:
		ErrorsTotal.WithLabelValues(ev.Stage).Inc()
	case hooks.EventCall, hooks.EventCallInitiated, hooks.EventCallStatus, hooks.EventCallEnded:
		if ev.Call != nil {
			CallsTotal.WithLabelValues(ev.Name, string(ev.Call.Status)).Inc()
		}
	case hooks.EventResponseGenerated:
		if ev.Response != nil && ev.Response.AI != nil {
			ai := ev.Response.AI
			TokensTotal.WithLabelValues(ai.Provider, "input").Add(float64(ai.InputTokens))
			TokensTotal.WithLabelValues(ai.Provider, "output").Add(float64(ai.OutputTokens))
		}
	}
}
