// Package metrics provides Prometheus instrumentation for the syncline
// delivery core: gauges for live connections and rooms, counters for
// broadcast throughput and drops.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of live WebSocket sessions.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncline_connections_active",
		Help: "Current number of active WebSocket sessions",
	})

	// RoomsActive tracks the current number of registry room entries.
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncline_rooms_active",
		Help: "Current number of rooms with at least one subscriber",
	})

	// EventsBroadcast counts outbound events by kind: "new_message",
	// "conversation_touched", "conversation_created", "typing_relay",
	// "catch_up_batch".
	EventsBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncline_events_broadcast_total",
		Help: "Total number of events broadcast to rooms",
	}, []string{"event"})

	// EventsDropped counts deliveries skipped because a session's outbound
	// queue was full or closed.
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncline_events_dropped_total",
		Help: "Total number of per-session deliveries dropped",
	})

	// MessagesPersisted counts messages durably appended to the store.
	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncline_messages_persisted_total",
		Help: "Total number of messages appended to the message store",
	})

	// BackfillMessages records catch-up batch sizes.
	BackfillMessages = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncline_backfill_batch_size",
		Help:    "Number of messages delivered per catch-up batch",
		Buckets: []float64{0, 1, 5, 10, 30, 50, 100},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		RoomsActive,
		EventsBroadcast,
		EventsDropped,
		MessagesPersisted,
		BackfillMessages,
	)
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
