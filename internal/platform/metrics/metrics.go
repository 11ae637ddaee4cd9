package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound platform traffic
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ojsync_fetch_requests_total",
			Help: "Outbound platform requests by outcome (ok, retry, throttled, auth, error, rejected)",
		},
		[]string{"platform", "outcome"},
	)

	RateLimiterWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ojsync_rate_limiter_wait_seconds",
			Help:    "Time spent waiting on the per-platform rate limiter",
			Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"platform"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ojsync_circuit_breaker_state",
			Help: "Circuit breaker state per platform (0 closed, 1 half-open, 2 open)",
		},
		[]string{"platform"},
	)

	// Orchestrator
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ojsync_sync_runs_total",
			Help: "Account sync runs by outcome",
		},
		[]string{"platform", "outcome"},
	)

	SubmissionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ojsync_submissions_ingested_total",
			Help: "Submissions newly persisted",
		},
		[]string{"platform"},
	)

	ProblemsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ojsync_problems_created_total",
			Help: "Problems created on first reference",
		},
		[]string{"platform"},
	)

	AccountsDeactivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ojsync_accounts_deactivated_total",
			Help: "Accounts auto-deactivated after consecutive failures",
		},
		[]string{"platform"},
	)

	// Jobs
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ojsync_job_duration_seconds",
			Help:    "Sync job wall time by final status",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"status"},
	)

	StaleJobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ojsync_stale_jobs_swept_total",
			Help: "Running jobs marked failed after their heartbeat expired",
		},
	)
)
