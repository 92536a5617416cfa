// Package metrics exposes Prometheus collectors for the distribution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

var (
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distview_tasks_total",
		Help: "Background tasks finished, by task kind and outcome",
	}, []string{"task", "outcome"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distview_task_duration_seconds",
		Help:    "Wall time of background tasks",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"task"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "distview_queue_depth",
		Help: "Tasks waiting in a queue lane",
	}, []string{"lane"})

	Publications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distview_publications_total",
		Help: "Distribution notifications emitted, by view and kind",
	}, []string{"view", "kind"})

	BinnedPixels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distview_binned_pixels_total",
		Help: "Pixels folded into histograms, by direction",
	}, []string{"direction"})

	SubUnderflow = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distview_sub_underflow_total",
		Help: "Weight subtracted from histogram cells that did not hold it, by task kind",
	}, []string{"task"})

	StagedRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "distview_staged_rebuilds_total",
		Help: "Staged updates that fell back to a full rebuild because their base was stale",
	}, []string{"task"})

	MaskBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distview_mask_build_duration_seconds",
		Help:    "Time spent building highlight masks",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"mode"})
)
