package actor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions with appropriate labels.
var (
	// eventsTotal counts events delivered to actors, by machine and result.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_actor_events_total",
		Help: "Total number of events delivered to actors, by machine and result (handled, ignored)",
	}, []string{"machine", "result"})

	// macrostepSteps tracks how many resolution steps one macrostep took.
	macrostepSteps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statechart_actor_macrostep_steps",
		Help:    "Number of resolution steps per macrostep, by machine",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
	}, []string{"machine"})

	// macrostepDuration tracks wall time per macrostep.
	macrostepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statechart_actor_macrostep_duration_seconds",
		Help:    "Wall time of one macrostep, by machine",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"machine"})

	// actorsActive gauges currently running actors per machine.
	actorsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statechart_actors_active",
		Help: "Number of currently running actors, by machine",
	}, []string{"machine"})

	// queueDepth gauges events waiting in actor mailboxes per machine.
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statechart_actor_queue_depth",
		Help: "Number of events waiting in actor mailboxes, by machine",
	}, []string{"machine"})

	// invocationsActive gauges currently supervised invocations per machine.
	invocationsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statechart_invocations_active",
		Help: "Number of currently supervised invocations, by machine",
	}, []string{"machine"})
)
