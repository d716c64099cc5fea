package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ninechan_live_connections",
			Help: "Open live-view websocket connections",
		},
	)

	pushedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninechan_live_messages_total",
			Help: "Messages pushed to live-view clients by type",
		},
		[]string{"type"},
	)
)
