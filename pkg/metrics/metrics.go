package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	ListingsDiscovered *prometheus.CounterVec
	ListingsSaved      *prometheus.CounterVec
	ListingsSkipped    *prometheus.CounterVec
	ListingsRejected   *prometheus.CounterVec
	ListingErrors      *prometheus.CounterVec
}

// New registers every metric against reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total number of harvest runs by outcome.",
			},
			[]string{"status"}, // succeeded, failed
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Duration of harvest runs.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),
		ListingsDiscovered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listings_discovered_total",
				Help: "Listing links discovered on search surfaces.",
			},
			[]string{"region"},
		),
		ListingsSaved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listings_saved_total",
				Help: "Listings appended to the log.",
			},
			[]string{"region"},
		),
		ListingsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listings_skipped_total",
				Help: "Listings skipped without being fetched.",
			},
			[]string{"region", "reason"}, // known, security
		),
		ListingsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listings_rejected_total",
				Help: "Fetched listings that did not qualify.",
			},
			[]string{"region", "reason"},
		),
		ListingErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_listing_errors_total",
				Help: "Per-listing failures by error type.",
			},
			[]string{"region", "error_type"},
		),
	}
}
