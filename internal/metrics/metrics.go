package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pizzeria"

var (
	once sync.Once

	monitorWakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_wakes_total",
			Help:      "Count of store monitor timer wakes by outcome.",
		},
		[]string{"outcome"},
	)

	monitorRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_refreshes_total",
			Help:      "Count of store monitor refreshes triggered by configuration writes.",
		},
	)

	monitorLoadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_load_failures_total",
			Help:      "Count of failed status and schedule loads.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_notifications_total",
			Help:      "Count of status notifications emitted by reason.",
		},
		[]string{"reason"},
	)

	storeClosed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_closed",
			Help:      "1 when the store is closed at the last evaluation, 0 when open.",
		},
	)

	nextBoundarySeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_next_boundary_seconds",
			Help:      "Seconds until the next open/closed change, -1 when none is scheduled.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route.",
		},
		[]string{"route"},
	)

	telegramSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_sends_total",
			Help:      "Count of Telegram messages sent to managers by status.",
		},
		[]string{"status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			monitorWakes,
			monitorRefreshes,
			monitorLoadFailures,
			notifications,
			storeClosed,
			nextBoundarySeconds,
			httpRequests,
			telegramSends,
		)
	})
}

func IncMonitorWake(outcome string) {
	monitorWakes.WithLabelValues(outcome).Inc()
}

func IncMonitorRefresh() {
	monitorRefreshes.Inc()
}

func IncMonitorLoadFailure() {
	monitorLoadFailures.Inc()
}

func IncNotification(reason string) {
	notifications.WithLabelValues(reason).Inc()
}

func SetStoreClosed(closed bool) {
	if closed {
		storeClosed.Set(1)
		return
	}
	storeClosed.Set(0)
}

// SetNextBoundary records the delay until the next boundary; negative means none.
func SetNextBoundary(seconds float64) {
	nextBoundarySeconds.Set(seconds)
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncTelegramSend(status string) {
	telegramSends.WithLabelValues(status).Inc()
}
