package subscriptions

import (
	"errors"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "subscriptions",
			Name:      "operations_total",
			Help:      "Subscription engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Expiration sweep runs by result",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Expiration sweep duration",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	sweepSubscriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sweep",
			Name:      "subscriptions_total",
			Help:      "Subscriptions handled by the sweep, by result",
		},
		[]string{"result"},
	)
)

// outcomes are checked in order; the first match labels the operation.
var outcomes = []struct {
	err   error
	label string
}{
	{ErrTransient, "transient"},
	{ErrForbidden, "forbidden"},
	{ErrPlanNotFound, "not_found"},
	{ErrSubscriptionNotFound, "not_found"},
	{ErrInvalidInput, "invalid_input"},
	{ErrPlanFull, "plan_full"},
	{ErrPlanExpired, "plan_expired"},
	{ErrPlanInactive, "plan_inactive"},
	{ErrAlreadySubscribed, "already_subscribed"},
	{ErrInvalidStateTransition, "invalid_transition"},
}

func recordOperation(operation string, err error) {
	operationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}

func recordSweep(result SweepResult, runErr error, d time.Duration) {
	label := "ok"
	switch {
	case errors.Is(runErr, ErrSweepInProgress):
		label = "skipped"
	case runErr != nil:
		label = "error"
	}
	sweepRuns.WithLabelValues(label).Inc()
	if label == "skipped" {
		return
	}

	sweepDuration.Observe(d.Seconds())
	sweepSubscriptions.WithLabelValues("scanned").Add(float64(result.Scanned))
	sweepSubscriptions.WithLabelValues("expired").Add(float64(result.Expired))
	sweepSubscriptions.WithLabelValues("skipped").Add(float64(result.Skipped))
	sweepSubscriptions.WithLabelValues("failed").Add(float64(result.Failed))
}
