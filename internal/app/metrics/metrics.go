package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fabtracker"

var (
	CheckCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_cycles_total",
		Help:      "Tenant check cycles by result.",
	}, []string{"result"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seller_fetch_errors_total",
		Help:      "Failed seller fetches by error kind.",
	}, []string{"kind"})

	DetectedChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detected_changes_total",
		Help:      "Detected product changes by kind.",
	}, []string{"kind"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications by delivery outcome.",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Notifications waiting for dispatch.",
	})

	StaleLocksRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_locks_recovered_total",
		Help:      "Check locks taken over after exceeding the stale threshold.",
	})
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultBusy    = "busy"

	OutcomeSent    = "sent"
	OutcomeRetried = "retried"
	OutcomeDropped = "dropped"
	OutcomeSkipped = "skipped"
)
