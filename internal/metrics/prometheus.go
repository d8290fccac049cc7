package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JudgementsTotal counts finished judge calls by verdict.
	JudgementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_judgements_total",
			Help: "Total number of judged submissions",
		},
		[]string{"verdict"},
	)

	// JudgeDuration tracks the wall time of a whole judge call in seconds.
	JudgeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_judge_duration_seconds",
			Help:    "Duration of judge calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"verdict"},
	)

	// CasesTotal counts executed test cases by case verdict.
	CasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_cases_total",
			Help: "Total number of executed test cases",
		},
		[]string{"verdict"},
	)

	// Rejections counts static-analysis rejections by reason.
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_static_rejections_total",
			Help: "Total number of static analysis findings that rejected a submission",
		},
		[]string{"reason"},
	)

	// WorkersActive tracks the number of currently active workers.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)

	// JudgeFailures counts judge calls that ended in an error instead of a
	// verdict (configuration or infrastructure problems, not user code).
	JudgeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_judge_failures_total",
			Help: "Total number of judge infrastructure failures",
		},
	)
)
