package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// skill invocations per skill, transport and outcome status
	SkillRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_skill_requests_total",
			Help: "Total skill invocations",
		},
		[]string{"skill", "transport", "status"},
	)

	// skill latency in seconds per skill/transport
	SkillLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesagent_skill_duration_seconds",
			Help:    "Histogram of skill execution latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"skill", "transport"},
	)

	// authentication failures labelled by reason
	AuthFailureCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_auth_failures_total",
			Help: "Total authentication failures",
		},
		[]string{"reason"},
	)

	// task state transitions labelled by skill and resulting state
	TaskTransitionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_task_transitions_total",
			Help: "Total task state transitions",
		},
		[]string{"skill", "state"},
	)

	// webhook deliveries labelled by kind (task, delivery_report) and outcome
	WebhookDeliveryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_webhook_deliveries_total",
			Help: "Total webhook delivery attempts",
		},
		[]string{"kind", "outcome"},
	)

	// webhook delivery latency
	WebhookLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesagent_webhook_duration_seconds",
			Help:    "Duration of webhook deliveries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// scheduler runs labelled by scheduler name and outcome
	SchedulerRunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_scheduler_runs_total",
			Help: "Total scheduler cycles",
		},
		[]string{"scheduler", "outcome"},
	)

	// ad server adapter calls labelled by adapter, operation and outcome
	AdapterCallCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_adapter_calls_total",
			Help: "Total ad server adapter calls",
		},
		[]string{"adapter", "operation", "outcome"},
	)

	// rate limit requests per principal
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_ratelimit_requests_total",
			Help: "Total rate limit checks per principal",
		},
		[]string{"principal_id"},
	)

	// rate limit hits per principal
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_ratelimit_hits_total",
			Help: "Total rate limit rejections per principal",
		},
		[]string{"principal_id"},
	)

	// product ranker requests labelled by outcome
	RankerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesagent_ranker_requests_total",
			Help: "Total product ranking requests",
		},
		[]string{"outcome"},
	)

	// Latency of product ranking service calls
	RankerLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salesagent_ranker_duration_seconds",
			Help:    "Duration of product ranking requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// database pool statistics (size, checked_in, checked_out, overflow, total)
	DBPoolStat = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "salesagent_db_pool",
			Help: "Database connection pool statistics",
		},
		[]string{"stat"},
	)

	// query retries after connection-class errors
	DBRetryCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesagent_db_retries_total",
			Help: "Total database operation retries",
		},
	)

	// circuit breaker trips
	BreakerTripCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesagent_db_breaker_trips_total",
			Help: "Total database circuit breaker trips",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		SkillRequestCount,
		SkillLatency,
		AuthFailureCount,
		TaskTransitionCount,
		WebhookDeliveryCount,
		WebhookLatency,
		SchedulerRunCount,
		AdapterCallCount,
		RateLimitRequests,
		RateLimitHits,
		RankerRequests,
		RankerLatency,
		DBPoolStat,
		DBRetryCount,
		BreakerTripCount,
	)
}
