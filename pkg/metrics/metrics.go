package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	NoteSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cloudnote", Name: "note_saves_total", Help: "Number of note save attempts by mode (full, patch) and outcome (ok, conflict, error)."},
		[]string{"mode", "outcome"},
	)
	VersionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "cloudnote", Name: "version_conflicts_total", Help: "Number of writes rejected by the version check."},
	)
	ConflictResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cloudnote", Name: "conflict_resolutions_total", Help: "Number of resolved conflicts by resolution choice."},
		[]string{"resolution"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cloudnote", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cloudnote", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(NoteSaves)
	reg.MustRegister(VersionConflicts)
	reg.MustRegister(ConflictResolutions)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
