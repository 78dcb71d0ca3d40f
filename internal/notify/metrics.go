package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btc_battle_notify_events_published_total",
		Help: "Total number of events delivered to subscribers",
	}, []string{"channel"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btc_battle_notify_events_dropped_total",
		Help: "Total number of events dropped for slow or failed subscribers",
	}, []string{"channel"})

	WSClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btc_battle_notify_ws_clients_connected",
		Help: "Number of currently connected WebSocket clients",
	})

	WSMessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_notify_ws_messages_sent_total",
		Help: "Total number of messages written to WebSocket clients",
	})
)
