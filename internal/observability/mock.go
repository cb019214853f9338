package observability

import (
	"sync"
	"time"
)

var _ MetricsRegistry = (*MockMetricsRegistry)(nil)

// MockMetricsRegistry counts increments so tests can assert on them.
// Latency and gauge recordings are discarded.
type MockMetricsRegistry struct {
	mu                sync.Mutex
	SkillRequests     map[string]int
	AuthFailures      map[string]int
	TaskTransitions   map[string]int
	WebhookDeliveries map[string]int
	SchedulerRuns     map[string]int
	AdapterCalls      map[string]int
	RateLimitHits     int
	DBRetries         int
	BreakerTrips      int
}

// NewMockMetricsRegistry creates a mock with initialized counters.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		SkillRequests:     make(map[string]int),
		AuthFailures:      make(map[string]int),
		TaskTransitions:   make(map[string]int),
		WebhookDeliveries: make(map[string]int),
		SchedulerRuns:     make(map[string]int),
		AdapterCalls:      make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementSkillRequests(skill, transport, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SkillRequests[skill+"|"+transport+"|"+status]++
}

func (m *MockMetricsRegistry) RecordSkillLatency(skill, transport string, d time.Duration) {}

func (m *MockMetricsRegistry) IncrementAuthFailures(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthFailures[reason]++
}

func (m *MockMetricsRegistry) IncrementTaskTransitions(skill, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskTransitions[skill+"|"+state]++
}

func (m *MockMetricsRegistry) IncrementWebhookDeliveries(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookDeliveries[kind+"|"+outcome]++
}

func (m *MockMetricsRegistry) RecordWebhookLatency(d time.Duration) {}

func (m *MockMetricsRegistry) IncrementSchedulerRuns(scheduler, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SchedulerRuns[scheduler+"|"+outcome]++
}

func (m *MockMetricsRegistry) IncrementAdapterCalls(adapter, operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdapterCalls[adapter+"|"+operation+"|"+outcome]++
}

func (m *MockMetricsRegistry) IncrementRateLimitRequests(principalID string) {}

func (m *MockMetricsRegistry) IncrementRateLimitHits(principalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimitHits++
}

func (m *MockMetricsRegistry) IncrementRankerRequests(outcome string)   {}
func (m *MockMetricsRegistry) RecordRankerLatency(d time.Duration)      {}
func (m *MockMetricsRegistry) SetDBPoolStat(stat string, value float64) {}

func (m *MockMetricsRegistry) IncrementDBRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBRetries++
}

func (m *MockMetricsRegistry) IncrementBreakerTrips() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BreakerTrips++
}

// WebhookCount returns the count for one kind|outcome pair.
func (m *MockMetricsRegistry) WebhookCount(kind, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.WebhookDeliveries[kind+"|"+outcome]
}
