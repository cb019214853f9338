package analytics

import (
	"context"
	"testing"
	"time"
)

func TestMediaBuyTotalsWindow(t *testing.T) {
	m := NewMockAnalytics()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	events := []DeliveryEvent{
		{Timestamp: base.Add(1 * time.Hour), TenantID: "t1", MediaBuyID: "mb1", PackageID: "pkg1", EventType: EventImpression, Impressions: 1000, Spend: 5},
		{Timestamp: base.Add(2 * time.Hour), TenantID: "t1", MediaBuyID: "mb1", PackageID: "pkg1", EventType: EventClick},
		{Timestamp: base.Add(3 * time.Hour), TenantID: "t1", MediaBuyID: "mb1", PackageID: "pkg2", EventType: EventImpression, Impressions: 500, Spend: 2.5},
		// outside the window
		{Timestamp: base.Add(30 * time.Hour), TenantID: "t1", MediaBuyID: "mb1", PackageID: "pkg1", EventType: EventImpression, Impressions: 9999, Spend: 99},
		// different buy
		{Timestamp: base.Add(1 * time.Hour), TenantID: "t1", MediaBuyID: "mb2", PackageID: "pkg1", EventType: EventImpression, Impressions: 777, Spend: 7},
	}
	for _, ev := range events {
		if err := m.RecordDelivery(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	totals, err := m.MediaBuyTotals(ctx, "t1", "mb1", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Impressions != 1500 {
		t.Errorf("impressions = %d, want 1500", totals.Impressions)
	}
	if totals.Spend != 7.5 {
		t.Errorf("spend = %f, want 7.5", totals.Spend)
	}
	if totals.Clicks != 1 {
		t.Errorf("clicks = %d, want 1", totals.Clicks)
	}
}

func TestPackageTotalsGrouping(t *testing.T) {
	m := NewMockAnalytics()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := m.RecordDelivery(ctx, DeliveryEvent{
			Timestamp: base.Add(time.Duration(i) * time.Hour), TenantID: "t1", MediaBuyID: "mb1",
			PackageID: "pkg1", EventType: EventImpression, Impressions: 100, Spend: 1,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := m.RecordDelivery(ctx, DeliveryEvent{
		Timestamp: base.Add(time.Hour), TenantID: "t1", MediaBuyID: "mb1",
		PackageID: "pkg2", EventType: EventImpression, Impressions: 50, Spend: 0.5,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	byPkg, err := m.PackageTotals(ctx, "t1", "mb1", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("package totals: %v", err)
	}
	if len(byPkg) != 2 {
		t.Fatalf("packages = %d, want 2", len(byPkg))
	}
	if byPkg["pkg1"].Impressions != 300 {
		t.Errorf("pkg1 impressions = %d, want 300", byPkg["pkg1"].Impressions)
	}
	if byPkg["pkg2"].Spend != 0.5 {
		t.Errorf("pkg2 spend = %f, want 0.5", byPkg["pkg2"].Spend)
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	m := NewMockAnalytics()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := m.RecordDelivery(ctx, DeliveryEvent{
			Timestamp: base.Add(time.Duration(i) * time.Minute), TenantID: "t1",
			MediaBuyID: "mb1", PackageID: "pkg1", EventType: EventImpression, Impressions: 1,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	events, err := m.RecentEvents(ctx, "t1", "mb1", 3)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if !events[0].Timestamp.After(events[2].Timestamp) {
		t.Errorf("events not ordered newest first")
	}
}
