package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/gorelay/internal/chat"
)

// Metrics holds the relay's Prometheus collectors on a private registry so
// several servers can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	participants   prometheus.Gauge
	joins          prometheus.Counter
	leaves         prometheus.Counter
	dropped        prometheus.Counter
	broadcasts     prometheus.Counter
	echoSessions   prometheus.Counter
	joinRejections *prometheus.CounterVec
}

// NewMetrics registers all collectors, including the Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "chat",
			Name:      "participants",
			Help:      "Participants currently in the chat room.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "chat",
			Name:      "joins_total",
			Help:      "Participants that joined the chat room.",
		}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "chat",
			Name:      "leaves_total",
			Help:      "Participants that left the chat room.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "chat",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a participant's mailbox was full.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "chat",
			Name:      "broadcasts_total",
			Help:      "Messages broadcast to the chat room.",
		}),
		echoSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "echo",
			Name:      "sessions_total",
			Help:      "Echo sessions served.",
		}),
		joinRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "chat",
			Name:      "join_rejections_total",
			Help:      "Chat connections refused, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.participants,
		m.joins,
		m.leaves,
		m.dropped,
		m.broadcasts,
		m.echoSessions,
		m.joinRejections,
	)
	return m
}

// Observe subscribes the collectors to the room's lifecycle events.
func (m *Metrics) Observe(room *chat.Room) {
	room.On(chat.EventJoined, func(chat.ParticipantID) {
		m.participants.Inc()
		m.joins.Inc()
	})
	room.On(chat.EventLeft, func(chat.ParticipantID) {
		m.participants.Dec()
		m.leaves.Inc()
	})
	room.On(chat.EventDropped, func(chat.ParticipantID) {
		m.dropped.Inc()
	})
	room.On(chat.EventBroadcast, func(chat.ParticipantID) {
		m.broadcasts.Inc()
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
