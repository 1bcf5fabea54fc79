package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "burner"

// Gate outcomes.
const (
	OutcomeAdmitted    = "admitted"
	OutcomeReentered   = "reentered"
	OutcomeNotFound    = "room-not-found"
	OutcomeFull        = "room-full"
	OutcomeUnavailable = "service-unavailable"
)

// Room destruction reasons.
const (
	ReasonDestroyed = "destroyed"
	ReasonExpired   = "expired"
)

type Metrics struct {
	registry *prometheus.Registry

	GateDecisions    *prometheus.CounterVec
	RoomsCreated     prometheus.Counter
	RoomsDestroyed   *prometheus.CounterVec
	RelaySubscribers prometheus.Gauge
	RelayRooms       prometheus.Gauge
	RelayedMessages  prometheus.Counter
	DroppedClients   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Room access decisions by outcome.",
		}, []string{"outcome"}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created.",
		}),
		RoomsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_destroyed_total",
			Help:      "Rooms torn down, by reason.",
		}, []string{"reason"}),
		RelaySubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_subscribers",
			Help:      "Relay connections currently subscribed to a room.",
		}),
		RelayRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_rooms",
			Help:      "Rooms with at least one relay subscriber.",
		}),
		RelayedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_messages_total",
			Help:      "Messages fanned out by the relay.",
		}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_clients_total",
			Help:      "Subscribers dropped because their send buffer was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.GateDecisions,
		m.RoomsCreated,
		m.RoomsDestroyed,
		m.RelaySubscribers,
		m.RelayRooms,
		m.RelayedMessages,
		m.DroppedClients,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
