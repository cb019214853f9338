package analytics

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics keeps delivery events in memory and aggregates them on
// read. Tests use it in place of ClickHouse.
type MockAnalytics struct {
	mu     sync.Mutex
	events []DeliveryEvent
}

// NewMockAnalytics creates a new mock analytics instance.
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordDelivery appends one event.
func (m *MockAnalytics) RecordDelivery(_ context.Context, ev DeliveryEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func inWindow(ev DeliveryEvent, start, end time.Time) bool {
	return !ev.Timestamp.Before(start) && ev.Timestamp.Before(end)
}

// MediaBuyTotals aggregates a buy's delivery inside [start, end).
func (m *MockAnalytics) MediaBuyTotals(_ context.Context, tenantID, mediaBuyID string, start, end time.Time) (DeliveryTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t DeliveryTotals
	for _, ev := range m.events {
		if ev.TenantID != tenantID || ev.MediaBuyID != mediaBuyID || !inWindow(ev, start, end) {
			continue
		}
		accumulate(&t, ev)
	}
	return t, nil
}

// PackageTotals aggregates per package inside [start, end).
func (m *MockAnalytics) PackageTotals(_ context.Context, tenantID, mediaBuyID string, start, end time.Time) (map[string]DeliveryTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]DeliveryTotals)
	for _, ev := range m.events {
		if ev.TenantID != tenantID || ev.MediaBuyID != mediaBuyID || !inWindow(ev, start, end) {
			continue
		}
		t := out[ev.PackageID]
		accumulate(&t, ev)
		out[ev.PackageID] = t
	}
	return out, nil
}

// RecentEvents returns the newest events for a buy, newest first.
func (m *MockAnalytics) RecentEvents(_ context.Context, tenantID, mediaBuyID string, limit int) ([]DeliveryEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DeliveryEvent
	for _, ev := range m.events {
		if ev.TenantID == tenantID && ev.MediaBuyID == mediaBuyID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func accumulate(t *DeliveryTotals, ev DeliveryEvent) {
	t.Spend += ev.Spend
	switch ev.EventType {
	case EventImpression:
		t.Impressions += ev.Impressions
	case EventClick:
		t.Clicks++
	case EventVideoComplete:
		t.VideoCompletions++
	}
}
