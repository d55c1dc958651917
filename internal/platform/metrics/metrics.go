// Package metrics owns the Prometheus collectors of the service.
//
// Every recording method is safe on a nil *Metrics so components and tests can
// run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "artfolio"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// eventsPublished counts bus publishes.
	// Labels: topic
	eventsPublished *prometheus.CounterVec

	// handlerPanics counts recovered subscriber panics.
	// Labels: topic
	handlerPanics *prometheus.CounterVec

	// transitions counts request workflow transitions.
	// Labels: kind (collaboration, review), status (pending, approved, denied)
	transitions *prometheus.CounterVec

	// inflightRejected counts calls dropped because the subject was busy.
	// Labels: scope (follow, favorite, transition)
	inflightRejected *prometheus.CounterVec

	// storeLatency measures store operations.
	// Labels: op (get, set, remove, keys), outcome (ok, error)
	storeLatency *prometheus.HistogramVec

	// cacheLookups counts artist cache lookups.
	// Labels: result (hit, miss)
	cacheLookups *prometheus.CounterVec

	// httpRequests measures API requests.
	// Labels: route, method, code
	httpRequests *prometheus.HistogramVec

	// wsClients tracks connected websocket event clients.
	wsClients prometheus.Gauge
}

// New creates a registry with Go/process collectors and the service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "published_total",
			Help:      "Total events published on the bus",
		}, []string{"topic"}),
		handlerPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "handler_panics_total",
			Help:      "Total subscriber panics recovered during dispatch",
		}, []string{"topic"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "transitions_total",
			Help:      "Total request workflow transitions",
		}, []string{"kind", "status"}),
		inflightRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inflight",
			Name:      "rejected_total",
			Help:      "Total calls rejected because the same subject was in flight",
		}, []string{"scope"}),
		storeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"op", "outcome"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artists",
			Name:      "cache_lookups_total",
			Help:      "Artist summary cache lookups",
		}, []string{"result"}),
		httpRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "websocket_clients",
			Help:      "Connected websocket event clients",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventPublished counts one publish on topic.
func (m *Metrics) EventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic).Inc()
}

// HandlerPanicked counts a subscriber that panicked while handling topic.
func (m *Metrics) HandlerPanicked(topic string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(topic).Inc()
}

// Transition counts a request of kind moving to status.
func (m *Metrics) Transition(kind, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, status).Inc()
}

// InFlightRejected counts a call dropped because its subject was held.
func (m *Metrics) InFlightRejected(scope string) {
	if m == nil {
		return
	}
	m.inflightRejected.WithLabelValues(scope).Inc()
}

// StoreOp observes the latency of a store operation, labelled by outcome.
func (m *Metrics) StoreOp(op string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeLatency.WithLabelValues(op, outcome).Observe(took.Seconds())
}

// CacheLookup counts an artist summary lookup as a hit or a miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// HTTPRequest observes the duration of a request on a route pattern.
func (m *Metrics) HTTPRequest(route, method, code string, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, code).Observe(took.Seconds())
}

// WebsocketConnected increments the open event stream gauge.
func (m *Metrics) WebsocketConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

// WebsocketDisconnected decrements the open event stream gauge.
func (m *Metrics) WebsocketDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
