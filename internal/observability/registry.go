package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components take the interface rather than touching the global Prometheus
// metrics, so tests can pass the no-op implementation.
type MetricsRegistry interface {
	// Skill invocation metrics
	IncrementSkillRequests(skill, transport, status string)
	RecordSkillLatency(skill, transport string, duration time.Duration)

	// Authentication metrics
	IncrementAuthFailures(reason string)

	// Task lifecycle metrics
	IncrementTaskTransitions(skill, state string)

	// Webhook metrics
	IncrementWebhookDeliveries(kind, outcome string)
	RecordWebhookLatency(duration time.Duration)

	// Scheduler metrics
	IncrementSchedulerRuns(scheduler, outcome string)

	// Adapter metrics
	IncrementAdapterCalls(adapter, operation, outcome string)

	// Rate limiting metrics
	IncrementRateLimitRequests(principalID string)
	IncrementRateLimitHits(principalID string)

	// Product ranking metrics
	IncrementRankerRequests(outcome string)
	RecordRankerLatency(duration time.Duration)

	// Database metrics
	SetDBPoolStat(stat string, value float64)
	IncrementDBRetries()
	IncrementBreakerTrips()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementSkillRequests(skill, transport, status string) {
	SkillRequestCount.WithLabelValues(skill, transport, status).Inc()
}

func (r *PrometheusRegistry) RecordSkillLatency(skill, transport string, duration time.Duration) {
	SkillLatency.WithLabelValues(skill, transport).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAuthFailures(reason string) {
	AuthFailureCount.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementTaskTransitions(skill, state string) {
	TaskTransitionCount.WithLabelValues(skill, state).Inc()
}

func (r *PrometheusRegistry) IncrementWebhookDeliveries(kind, outcome string) {
	WebhookDeliveryCount.WithLabelValues(kind, outcome).Inc()
}

func (r *PrometheusRegistry) RecordWebhookLatency(duration time.Duration) {
	WebhookLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementSchedulerRuns(scheduler, outcome string) {
	SchedulerRunCount.WithLabelValues(scheduler, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAdapterCalls(adapter, operation, outcome string) {
	AdapterCallCount.WithLabelValues(adapter, operation, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(principalID string) {
	RateLimitRequests.WithLabelValues(principalID).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(principalID string) {
	RateLimitHits.WithLabelValues(principalID).Inc()
}

func (r *PrometheusRegistry) IncrementRankerRequests(outcome string) {
	RankerRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordRankerLatency(duration time.Duration) {
	RankerLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) SetDBPoolStat(stat string, value float64) {
	DBPoolStat.WithLabelValues(stat).Set(value)
}

func (r *PrometheusRegistry) IncrementDBRetries() {
	DBRetryCount.Inc()
}

func (r *PrometheusRegistry) IncrementBreakerTrips() {
	BreakerTripCount.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementSkillRequests(skill, transport, status string)      {}
func (r *NoOpRegistry) RecordSkillLatency(skill, transport string, d time.Duration) {}
func (r *NoOpRegistry) IncrementAuthFailures(reason string)                         {}
func (r *NoOpRegistry) IncrementTaskTransitions(skill, state string)                {}
func (r *NoOpRegistry) IncrementWebhookDeliveries(kind, outcome string)             {}
func (r *NoOpRegistry) RecordWebhookLatency(d time.Duration)                        {}
func (r *NoOpRegistry) IncrementSchedulerRuns(scheduler, outcome string)            {}
func (r *NoOpRegistry) IncrementAdapterCalls(adapter, operation, outcome string)    {}
func (r *NoOpRegistry) IncrementRateLimitRequests(principalID string)               {}
func (r *NoOpRegistry) IncrementRateLimitHits(principalID string)                   {}
func (r *NoOpRegistry) IncrementRankerRequests(outcome string)                      {}
func (r *NoOpRegistry) RecordRankerLatency(d time.Duration)                         {}
func (r *NoOpRegistry) SetDBPoolStat(stat string, value float64)                    {}
func (r *NoOpRegistry) IncrementDBRetries()                                         {}
func (r *NoOpRegistry) IncrementBreakerTrips()                                      {}
