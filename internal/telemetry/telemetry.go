// Package telemetry exposes Prometheus collectors for the watcher pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchd_checks_total",
			Help: "Total watcher checks processed, labeled by domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)

	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchd_fetch_requests_total",
			Help: "Total page fetches, labeled by domain and status code.",
		},
		[]string{"domain", "code"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchd_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies, labeled by domain.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	throttleDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchd_throttle_delay_seconds",
			Help:    "Histogram of waits imposed by the per-domain throttle.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"domain"},
	)

	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchd_alerts_total",
			Help: "Total alert events emitted, labeled by type.",
		},
		[]string{"type"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchd_active_workers",
			Help: "Number of workers currently processing a check.",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchd_queue_depth",
			Help: "Number of checks queued or in flight.",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheck records one completed watcher check.
func ObserveCheck(domain, outcome string) {
	checksTotal.WithLabelValues(domain, outcome).Inc()
}

// ObserveFetch records one HTTP fetch attempt. Code 0 means no response.
func ObserveFetch(domain string, code int, duration time.Duration) {
	fetchRequestsTotal.WithLabelValues(domain, strconv.Itoa(code)).Inc()
	fetchDurationSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveThrottleDelay records time spent waiting on the domain throttle.
func ObserveThrottleDelay(domain string, duration time.Duration) {
	throttleDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveAlert records one emitted alert event.
func ObserveAlert(alertType string) {
	alertsTotal.WithLabelValues(alertType).Inc()
}

// IncActiveWorkers marks a worker as busy.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers marks a worker as idle.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// SetQueueDepth publishes the current queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
