package timers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions with appropriate labels.
var (
	// timersArmed counts timers armed on state entry, by kind.
	timersArmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_timers_armed_total",
		Help: "Total number of delayed-transition timers armed, by kind (after, every)",
	}, []string{"kind"})

	// timersFired counts timer fires that dispatched an event, by kind.
	timersFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_timers_fired_total",
		Help: "Total number of delayed-transition timers that fired, by kind (after, every)",
	}, []string{"kind"})

	// timersCanceled counts timers canceled by state exit or actor stop.
	timersCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statechart_timers_canceled_total",
		Help: "Total number of delayed-transition timers canceled before firing",
	})
)
