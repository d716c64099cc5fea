package room

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninechan_room_updates_total",
			Help: "Document transitions by outcome (ok, error, remote)",
		},
		[]string{"result"},
	)

	roomVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ninechan_room_version",
			Help: "Version of the canonical room document",
		},
	)

	roomPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ninechan_room_peers",
			Help: "Number of clients present in the room",
		},
	)
)
