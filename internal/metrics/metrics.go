// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route pattern, and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criterionmark_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "criterionmark_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// CodesMinted counts unit codes created at admin approval.
	CodesMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criterionmark_codes_minted_total",
			Help: "Total number of unit verification codes minted",
		},
	)

	// ScansRecorded counts appended scan records by scanner role.
	ScansRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criterionmark_scans_recorded_total",
			Help: "Total number of scan records appended",
		},
		[]string{"scanned_by"},
	)

	// UnknownCodeScans counts verification attempts against codes that do
	// not exist, the primary counterfeit signal.
	UnknownCodeScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criterionmark_unknown_code_scans_total",
			Help: "Total number of verifications of unknown codes",
		},
	)

	// GeoLookupFailures counts degraded geolocation enrichments.
	GeoLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criterionmark_geo_lookup_failures_total",
			Help: "Total number of failed best-effort geolocation lookups",
		},
	)

	// SealDegradations counts seals rendered with an incomplete watermark.
	SealDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criterionmark_seal_degradations_total",
			Help: "Total number of seals whose watermark embed degraded",
		},
	)

	// ConfirmationMismatches counts failed finalize attempts.
	ConfirmationMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criterionmark_confirmation_mismatches_total",
			Help: "Total number of finalize attempts with a wrong confirmation code",
		},
	)
)
