// Package metrics holds the Prometheus collectors of the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results.
const (
	DeliveredLocal   = "local"
	DeliveredRelayed = "relayed"
	DeliveryOffline  = "offline"
	DeliveryDropped  = "dropped"
)

var (
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skillswap_messages_appended_total",
		Help: "Messages durably appended to chat sessions.",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_deliveries_total",
		Help: "Realtime event deliveries by result.",
	}, []string{"result"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_connections_active",
		Help: "Registered realtime connections on this node.",
	})

	CallTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_call_transitions_total",
		Help: "Call state transitions by target state.",
	}, []string{"state"})
)
