package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JoinAttempts counts verification attempts by outcome
	// (committed, degraded, out_of_range, confirmation_failed, ...).
	JoinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_join_attempts_total",
		Help: "Join verification attempts by outcome.",
	}, []string{"outcome"})

	// SessionConflicts counts session writes rejected by the conflict guard.
	SessionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_session_conflicts_total",
		Help: "Session creates/updates rejected for time overlap.",
	})

	// GeofenceDenials counts geofence checks that resolved to denied.
	GeofenceDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_geofence_denials_total",
		Help: "Geofence validations outside the allowed radius.",
	})
)
