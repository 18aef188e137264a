// Package metrics exposes Prometheus collectors for the watcher service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal             *prometheus.CounterVec
	projectsAcceptedTotal prometheus.Counter
	projectsRejectedTotal *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	fetchDurationSeconds  prometheus.Histogram
	storeSize             prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundwatch_runs_total",
				Help: "Total number of scrape runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		projectsAcceptedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fundwatch_projects_accepted_total",
				Help: "Total number of newly accepted projects.",
			},
		)

		projectsRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundwatch_projects_rejected_total",
				Help: "Total number of rejected candidates, labeled by reason.",
			},
			[]string{"reason"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundwatch_notifications_total",
				Help: "Total number of notification attempts, labeled by result.",
			},
			[]string{"status"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fundwatch_fetch_duration_seconds",
				Help:    "Histogram of listing page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		storeSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fundwatch_store_size",
				Help: "Number of projects currently in the store.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun counts one finished (or dropped) run.
func ObserveRun(status string) {
	if runsTotal != nil {
		runsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveAccepted counts one newly accepted project.
func ObserveAccepted() {
	if projectsAcceptedTotal != nil {
		projectsAcceptedTotal.Inc()
	}
}

// ObserveRejected counts one rejected candidate.
func ObserveRejected(reason string) {
	if projectsRejectedTotal != nil {
		projectsRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveNotification counts one notification attempt.
func ObserveNotification(status string) {
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveFetch records the listing fetch duration.
func ObserveFetch(d time.Duration) {
	if fetchDurationSeconds != nil {
		fetchDurationSeconds.Observe(d.Seconds())
	}
}

// SetStoreSize records the current store size.
func SetStoreSize(n int) {
	if storeSize != nil {
		storeSize.Set(float64(n))
	}
}
