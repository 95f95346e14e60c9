// Package metrics holds the Prometheus collectors of the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Publish path
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_published_total",
			Help: "Total messages durably stored and handed to the bus",
		},
		[]string{"transport"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_publish_failures_total",
			Help: "Total publish requests rejected or failed before the bus",
		},
		[]string{"code"},
	)

	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_store_append_duration_seconds",
			Help:    "Store append latency including sequence assignment",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// Fan-out
	Deliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_bus_deliveries_total",
			Help: "Total events queued to subscribers",
		},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_bus_deliveries_dropped_total",
			Help: "Total events dropped because a subscriber queue was full",
		},
	)

	SlowConsumersClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_bus_slow_consumers_closed_total",
			Help: "Total subscriptions closed by the slow consumer policy",
		},
	)

	// Gateways
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_gateway_connections",
			Help: "Open gateway connections",
		},
		[]string{"gateway"},
	)
)

// RegisterSubscriptionGauge exposes the live subscription count of a bus.
// Call it once per process.
func RegisterSubscriptionGauge(total func() int) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chat_bus_subscriptions",
			Help: "Live bus subscriptions across rooms",
		},
		func() float64 { return float64(total()) },
	)
}
