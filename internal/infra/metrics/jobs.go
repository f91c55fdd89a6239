package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobsReclaimedTotal, jobsRetriedTotal, jobDurationSeconds)
}

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_processed_total",
		Help: "Total number of generation jobs processed, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'rescheduled'
)

var jobsReclaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_jobs_reclaimed_total",
		Help: "Jobs stuck in 'processing' that were swept back to the queue.",
	},
)

var jobsRetriedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_retried_total",
		Help: "Retry reschedules, labeled by error class.",
	},
	[]string{"reason"}, // 'rate_limited', 'upstream', 'no_billable', 'other'
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "generation_job_duration_seconds",
		Help:    "Wall-clock duration of one job attempt.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	},
)

func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func AddReclaimed(n int) {
	jobsReclaimedTotal.Add(float64(n))
}

func IncRetry(reason string) {
	jobsRetriedTotal.WithLabelValues(norm(reason)).Inc()
}

func ObserveJobDuration(seconds float64) {
	jobDurationSeconds.Observe(seconds)
}
