package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clusterFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aks_console_cluster_fetch_duration_seconds",
			Help:    "Time taken by individual cluster API fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"resource", "status"}, // status: ok or error
	)

	partialErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aks_console_partial_errors_total",
			Help: "Total number of resources that failed within an otherwise successful aggregation",
		},
		[]string{"resource"},
	)

	credentialTierTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aks_console_credential_tier_total",
			Help: "Cluster credentials resolved, by tier",
		},
		[]string{"tier"}, // user, admin, admin-fallback
	)

	agentPoolFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aks_console_agent_pool_fallback_total",
			Help: "Total number of times node data was replaced by agent-pool metadata",
		},
	)

	clusterDetailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aks_console_cluster_detail_duration_seconds",
			Help:    "Time taken to build a complete cluster detail",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)
)
