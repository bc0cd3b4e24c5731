package connector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	failuresSwallowed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_fetch_failures_swallowed_total",
		Help: "Transport or parse failures returned to callers as empty or partial results",
	}, []string{"entity"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_fetch_all_duration_seconds",
		Help:    "Duration of full entity fetches",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"entity"})
)
