// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lender evaluation results.
const (
	ResultMatched       = "matched"
	ResultUnmatched     = "unmatched"
	ResultOracleError   = "oracle_error"
	ResultMalformed     = "malformed"
	OutcomeCompleted    = "completed"
	OutcomeNoLenders    = "no_lenders"
	OutcomeInvalidInput = "invalid_input"
)

var (
	EligibilityEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibility_evaluations_total",
			Help: "Total number of application eligibility evaluations by outcome",
		},
		[]string{"outcome"},
	)

	LenderEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibility_lender_evaluations_total",
			Help: "Total number of single-lender evaluations by result",
		},
		[]string{"result"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eligibility_evaluation_duration_seconds",
			Help:    "Wall-clock duration of a full lender fan-out",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
	)

	OracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_request_duration_seconds",
			Help:    "Duration of oracle generateContent calls",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"operation", "status"},
	)

	OracleResponseRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_response_repairs_total",
			Help: "Oracle payloads that needed the repair pass, by result",
		},
		[]string{"result"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
