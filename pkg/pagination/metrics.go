package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts pages returned to callers by style.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_pages_fetched_total",
			Help: "Total number of pages returned by the pagination engine",
		},
		[]string{"style"},
	)

	// ReplayRequests counts round trips spent replaying earlier cursor pages.
	ReplayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_page_replay_requests_total",
			Help: "Total number of round trips spent replaying intermediate cursor pages",
		},
		[]string{"style"},
	)

	// PageFailures counts swallowed page failures by style and reason.
	PageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_page_failures_total",
			Help: "Total number of page fetches that degraded to an empty page",
		},
		[]string{"style", "reason"}, // "transport", "cancelled"
	)

	// RecordsExtracted counts records returned to callers.
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_records_extracted_total",
			Help: "Total number of records returned in pages",
		},
		[]string{"style"},
	)
)
