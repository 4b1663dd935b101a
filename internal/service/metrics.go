package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	moderationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moderation",
		Name:      "actions_total",
		Help:      "Moderation actions applied, by resulting action.",
	}, []string{"action_taken"})

	degradedViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moderation",
		Name:      "degraded_violations_total",
		Help:      "Moderation actions that proceeded with a placeholder violation after the insert failed.",
	})

	secondaryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moderation",
		Name:      "secondary_failures_total",
		Help:      "Failures on best-effort paths that did not fail the request.",
	}, []string{"path"})

	suspensionLifts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moderation",
		Name:      "suspension_lifts_total",
		Help:      "Suspensions lifted by an admin or an approved appeal.",
	})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moderation",
		Name:      "notifications_total",
		Help:      "Notification attempts by kind and result.",
	}, []string{"kind", "result"})

	appealDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moderation",
		Name:      "appeal_decisions_total",
		Help:      "Appeal status transitions by target status.",
	}, []string{"status"})
)
