package chart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric outcome and reason label values.
const (
	outcomeChanged = "changed"
	outcomeNoop    = "noop"

	reasonDone      = "done"
	reasonUnmatched = "unmatched"
)

// Metric definitions with appropriate labels.
var (
	// transitionsTotal counts resolution steps that took at least one
	// transition, by machine and event type.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_transitions_total",
		Help: "Total number of resolution steps that took a transition, by machine and event type",
	}, []string{"machine", "event"})

	// noopTotal counts events that produced no transition, by machine and
	// reason (done machine vs. no enabled transition).
	noopTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_noop_events_total",
		Help: "Total number of events that produced no transition, by machine and reason",
	}, []string{"machine", "reason"})

	// resolveDuration tracks single-step resolution time.
	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statechart_resolve_duration_seconds",
		Help:    "Duration of one resolution step by machine and outcome",
		Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"machine", "outcome"})
)

// Helper functions for label sanitization.
func sanitizeMachine(id string) string {
	if id == "" {
		return "unknown"
	}

	return id
}

func sanitizeEventType(eventType string) string {
	if eventType == "" {
		return "none"
	}

	return eventType
}
