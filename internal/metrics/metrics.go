package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// счетчики живого состояния для /metrics; гейджи двигают владельцы
// соответствующих сущностей (реестр, очередь, менеджер сессий)
var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus4_connections_open",
		Help: "Number of open websocket connections.",
	})

	QueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus4_matchmaking_queue_size",
		Help: "Players currently waiting for an opponent.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus4_active_sessions",
		Help: "Game sessions currently in progress.",
	})

	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus4_games_finished_total",
		Help: "Finished games by result.",
	}, []string{"result"})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus4_ws_messages_received_total",
		Help: "Inbound websocket messages by type.",
	}, []string{"type"})
)
