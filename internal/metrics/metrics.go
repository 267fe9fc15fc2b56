// Package metrics exposes Prometheus collectors for the watcher.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	watchCyclesTotal        prometheus.Counter
	watchListingsTotal      *prometheus.CounterVec
	watchNotificationsTotal *prometheus.CounterVec
	watchFetchErrorsTotal   *prometheus.CounterVec
	watchActiveSearches     prometheus.Gauge

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		watchCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "watch_cycles_total",
			Help: "Total number of completed monitoring cycles.",
		})

		watchListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_listings_total",
				Help: "Total matched listings fetched, labeled by search.",
			},
			[]string{"search"},
		)

		watchNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_notifications_total",
				Help: "Total notification sends, labeled by outcome.",
			},
			[]string{"status"},
		)

		watchFetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_fetch_errors_total",
				Help: "Total failed catalog fetches, labeled by error kind.",
			},
			[]string{"kind"},
		)

		watchActiveSearches = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "watch_active_searches",
			Help: "Number of enabled searches being monitored.",
		})
	})
}

// IncCycle counts one completed cycle.
func IncCycle() {
	if watchCyclesTotal != nil {
		watchCyclesTotal.Inc()
	}
}

// AddListings counts matched listings fetched for a search.
func AddListings(search string, n int) {
	if watchListingsTotal != nil {
		watchListingsTotal.WithLabelValues(search).Add(float64(n))
	}
}

// IncNotification counts one notification send outcome ("sent" or "failed").
func IncNotification(status string) {
	if watchNotificationsTotal != nil {
		watchNotificationsTotal.WithLabelValues(status).Inc()
	}
}

// IncFetchError counts one classified fetch failure.
func IncFetchError(kind string) {
	if watchFetchErrorsTotal != nil {
		watchFetchErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// SetActiveSearches records how many searches the scheduler is driving.
func SetActiveSearches(n int) {
	if watchActiveSearches != nil {
		watchActiveSearches.Set(float64(n))
	}
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
