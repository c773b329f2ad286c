package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	strategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idscan_cascade_attempts_total",
			Help: "Total number of decode strategy attempts",
		},
		[]string{"strategy", "outcome"}, // outcome: hit, empty, failure, timeout
	)

	strategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idscan_cascade_strategy_duration_seconds",
			Help:    "Decode strategy duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"strategy"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idscan_cascade_runs_total",
			Help: "Total number of cascade runs by terminal state",
		},
		[]string{"state"},
	)
)
