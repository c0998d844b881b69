// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for connection counts, counters for message throughput
// and delivery outcomes, and histograms for request latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dm_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// AuthedConnections tracks connections bound to an authenticated user.
	AuthedConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dm_authed_connections",
		Help: "Current number of authenticated WebSocket connections",
	})

	// MessagesTotal counts processed send events, labeled by outcome:
	// "stored", "dropped" (gateway rejection), or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_messages_total",
		Help: "Total number of send events processed",
	}, []string{"outcome"})

	// DeliveriesTotal counts real-time deliveries pushed to recipients.
	DeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dm_deliveries_total",
		Help: "Total number of messages delivered over live connections",
	})

	// HistoryLatency records inbox history request latency in seconds.
	HistoryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dm_history_latency_seconds",
		Help:    "Inbox history request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// MarkReadTotal counts mark-conversation-read commands applied.
	MarkReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dm_mark_read_total",
		Help: "Total number of mark-conversation-read commands applied",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		AuthedConnections,
		MessagesTotal,
		DeliveriesTotal,
		HistoryLatency,
		MarkReadTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
