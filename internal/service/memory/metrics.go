package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "store_total",
		Help:      "Store requests by result (created, merged, rejected).",
	}, []string{"result"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "quality_rejections_total",
		Help:      "Writes refused by the quality gate, by rule.",
	}, []string{"rule"})

	contradictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "contradictions_total",
		Help:      "Older units demoted by contradicting writes, by kind.",
	}, []string{"kind"})

	recallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mnemo",
		Name:      "recall_duration_seconds",
		Help:      "End to end recall latency.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	recallHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "recall_hits_total",
		Help:      "Candidates produced per retrieval method.",
	}, []string{"method"})

	embedDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mnemo",
		Name:      "embed_duration_seconds",
		Help:      "Embedding call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	})

	embedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "embed_failures_total",
		Help:      "Embedding failures by reason (timeout, error, dropped).",
	}, []string{"reason"})

	maintenanceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mnemo",
		Name:      "maintenance_stage_duration_seconds",
		Help:      "Duration of each maintenance stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"stage"})

	lifecycleChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "lifecycle_changes_total",
		Help:      "Units changed by maintenance, by stage.",
	}, []string{"stage"})

	activeUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mnemo",
		Name:      "active_units",
		Help:      "Active memory units after the last maintenance run.",
	})
)
