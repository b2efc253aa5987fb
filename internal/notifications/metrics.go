package notifications

import (
	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "emitted_total",
			Help:      "Subscription notifications committed, by type",
		},
		[]string{"type"},
	)

	notificationsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "read_total",
			Help:      "Notifications marked as read",
		},
	)
)

// RecordEmitted counts a notification whose unit of work committed.
func RecordEmitted(typ domain.NotificationType) {
	notificationsEmitted.WithLabelValues(string(typ)).Inc()
}
