package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strix_anomaly_runs_total",
			Help: "Total number of scoring runs by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strix_anomaly_run_duration_seconds",
			Help:    "Duration of a full scoring run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scoring metrics
	BaselineRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strix_anomaly_baseline_rows",
			Help: "Feature rows in the baseline window of the last run",
		},
	)

	TargetRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strix_anomaly_target_rows",
			Help: "Feature rows in the target window of the last run",
		},
	)

	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strix_anomaly_flagged_total",
			Help: "Total number of rows flagged anomalous",
		},
	)

	ThresholdGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "strix_anomaly_threshold",
			Help: "Baseline-derived detection threshold of the last run",
		},
	)

	DimensionMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strix_anomaly_dimension_mismatches_total",
			Help: "Runs degraded because feature rows disagreed on dimensionality",
		},
	)
)
