// Package metrics holds the Prometheus counters the crash-mover and
// ingestion handler update, registered at process start and scraped at
// /metrics.
//
// Grounded on internal/escrow/metrics.go's NewMetrics/promauto shape:
// a struct of pre-registered vectors built once and passed to the call
// sites, which update its fields directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters named in the crash-mover and throttler specs.
type Metrics struct {
	SaveCrashException    prometheus.Counter
	SaveCrashDropped      prometheus.Counter
	PublishCrashException prometheus.Counter
	PublishCrashDropped   prometheus.Counter

	ThrottleDecisions *prometheus.CounterVec // label: decision (ACCEPT, DEFER, REJECT, FAKEACCEPT)
	SubmitRequests    *prometheus.CounterVec // label: outcome (accepted, rejected, fakeaccept, malformed)
	SubmitDuration    prometheus.Histogram
}

// New registers and returns the counters used across the collector. Call
// once at startup; registering twice against the default registry panics.
func New() *Metrics {
	return &Metrics{
		SaveCrashException: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crashmover_save_crash_exception_total",
			Help: "Failed attempts to save a crash report to the store.",
		}),
		SaveCrashDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crashmover_save_crash_dropped_total",
			Help: "Jobs dropped after exhausting save retries.",
		}),
		PublishCrashException: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crashmover_publish_crash_exception_total",
			Help: "Failed attempts to publish a crash id.",
		}),
		PublishCrashDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crashmover_publish_crash_dropped_total",
			Help: "Jobs whose publish phase exhausted retries (save still succeeded).",
		}),
		ThrottleDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_throttle_decisions_total",
			Help: "Throttler decisions by outcome.",
		}, []string{"decision"}),
		SubmitRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_submit_requests_total",
			Help: "Requests to /submit by outcome.",
		}, []string{"outcome"}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_submit_duration_seconds",
			Help:    "Time to extract and throttle a submission and select its crash id.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
