// Package metrics wraps the Prometheus collectors exposed by every
// process in the backbone: the Sequencer's queue/round-trip gauges, the
// Strategy endpoint's reply counters, and the Gateway's transport
// counters all register against one Registry shape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the collectors shared across the backbone's processes.
// Not every process populates every field; a gateway process, for
// instance, never touches QueueDepth.
type Registry struct {
	reg *prometheus.Registry

	Connections       prometheus.Gauge
	QueueDepth        prometheus.Gauge
	MessagesIngested  prometheus.Counter
	MessagesPublished prometheus.Counter
	RoundTrips        prometheus.Counter
	RoundTripTimeouts prometheus.Counter
	RepliesSent       prometheus.Counter
	OrdersSubmitted   *prometheus.CounterVec
	TransportErrors   prometheus.Counter
}

// NewRegistry creates and registers the Prometheus collectors against a
// fresh *prometheus.Registry, rather than the global default — so a
// single process (or a test) can construct more than one Registry
// without tripping over duplicate-collector registration.
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	r := &Registry{
		reg: reg,
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently tracked in the connection table",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current depth of the sequencer's local FIFO queue",
		}),
		MessagesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Total number of messages received on the ingress subject",
		}),
		MessagesPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of messages published on the egress subject",
		}),
		RoundTrips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_trips_total",
			Help:      "Total number of fan-out request/reply round trips completed",
		}),
		RoundTripTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_trip_timeouts_total",
			Help:      "Total number of round trips that hit the configured reply timeout",
		}),
		RepliesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Total number of replies sent by a strategy endpoint",
		}),
		OrdersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Total number of order actions submitted to an exchange gateway",
		}, []string{"action"}),
		TransportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of transport-level errors observed",
		}),
	}
	return r
}

// Handler returns an HTTP handler exposing this registry's metrics for
// scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
