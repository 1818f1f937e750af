package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aks_console_sessions_active",
		Help: "Sessions currently held in the store",
	})

	websocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aks_console_websocket_connections",
		Help: "Authenticated websocket connections currently registered",
	})
)
