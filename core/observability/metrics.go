// Package observability exposes the server metric set on a private
// prometheus registry, one per server instance.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the server metric set.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ActiveConnections   prometheus.Gauge
	RequestsTotal       *prometheus.CounterVec
	ResponsesTotal      *prometheus.CounterVec
	EventsDropped       prometheus.Counter
	TimersReaped        prometheus.Counter
	ParseErrors         prometheus.Counter
	QueueDepth          prometheus.Gauge
}

// NewMetrics builds and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted on the listen socket.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "surge",
			Name:      "active_connections",
			Help:      "Connections currently open.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "requests_total",
			Help:      "Requests reaching the analyze phase.",
		}, []string{"method"}),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "responses_total",
			Help:      "Responses written, by status code.",
		}, []string{"status"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "events_dropped_total",
			Help:      "Readiness events dropped because the worker queue was saturated or closed.",
		}),
		TimersReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "timers_reaped_total",
			Help:      "Idle connections closed by timer expiry.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "parse_errors_total",
			Help:      "Connections closed due to malformed requests.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "surge",
			Name:      "worker_queue_depth",
			Help:      "Tasks waiting in the worker queue.",
		}),
	}

	m.registry.MustRegister(
		m.ConnectionsAccepted,
		m.ActiveConnections,
		m.RequestsTotal,
		m.ResponsesTotal,
		m.EventsDropped,
		m.TimersReaped,
		m.ParseErrors,
		m.QueueDepth,
	)

	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr. It blocks, so callers run it on its
// own goroutine; scrape traffic never touches the event loop.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
