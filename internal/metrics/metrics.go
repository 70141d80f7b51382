// Package metrics exposes Prometheus instruments for optimization runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed runs by kind and outcome
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balance_planner",
		Name:      "runs_total",
		Help:      "Completed optimization runs by kind and outcome",
	}, []string{"kind", "outcome"})

	// RunDuration observes wall time of successful runs
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "balance_planner",
		Name:      "run_duration_seconds",
		Help:      "Wall time of optimization runs",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"kind"})

	// RunGenerations observes how many generations a run used
	RunGenerations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "balance_planner",
		Name:      "run_generations",
		Help:      "Generations evaluated per run",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
	})

	// EditsRecorded counts accepted and rejected edits by field
	EditsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balance_planner",
		Name:      "edits_total",
		Help:      "Recorded cell edits by field and result",
	}, []string{"field", "result"})

	// ActiveSessions tracks live planning sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "balance_planner",
		Name:      "active_sessions",
		Help:      "Planning sessions currently held in memory",
	})
)

// Outcome labels a finished run
func Outcome(feasible bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case feasible:
		return "feasible"
	default:
		return "infeasible"
	}
}
