package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

func testRedis(t *testing.T) *db.RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func reportFixture(t *testing.T, webhookURL string, endOffset time.Duration) (*ReportScheduler, *models.InMemorySalesStore) {
	t.Helper()
	ctx := context.Background()
	store := models.NewInMemorySalesStore()

	if err := store.InsertTenant(ctx, &models.Tenant{
		TenantID: "t1",
		Name:     "Daily Examiner",
		AdServer: models.AdServerMock,
		IsActive: true,
	}); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}

	due := taskClock.Add(-5 * time.Minute)
	buy := &models.MediaBuy{
		TenantID:    "t1",
		MediaBuyID:  "mb_report",
		PrincipalID: "p1",
		BuyerRef:    "br-report",
		Status:      adcp.StatusActive,
		Currency:    "USD",
		Budget:      &adcp.Budget{Total: 1000, Currency: "USD"},
		StartTime:   taskClock.Add(-48 * time.Hour),
		EndTime:     taskClock.Add(endOffset),
		Packages: []models.Package{{
			PackageID: "pkg_1",
			BuyerRef:  "pkg-a",
			ProductID: "prod_ros",
			Budget:    &adcp.Budget{Total: 1000, Currency: "USD"},
		}},
		ReportingWebhook: &adcp.ReportingWebhook{
			URL:                webhookURL,
			ReportingFrequency: adcp.FrequencyHourly,
			Authentication:     &adcp.WebhookAuth{Schemes: []string{"Bearer"}, Credentials: "rpt-cred"},
		},
		NextReportAt: &due,
	}
	if err := store.InsertMediaBuy(ctx, buy); err != nil {
		t.Fatalf("InsertMediaBuy: %v", err)
	}

	metrics := observability.NewNoOpRegistry()
	sender := NewSender(time.Second, "", metrics)
	sender.retryDelay = 10 * time.Millisecond
	sched := NewReportScheduler(store,
		adapters.NewRegistry(analytics.NewMockAnalytics(), metrics),
		sender, testRedis(t), metrics, time.Minute)
	sched.now = func() time.Time { return taskClock }
	return sched, store
}

func TestScheduledReportFiresAndAdvances(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	sched, store := reportFixture(t, srv.URL, 72*time.Hour)
	ctx := context.Background()
	sched.RunOnce(ctx)

	if rec.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", rec.count())
	}
	body, hdr := rec.last()
	if got := hdr.Get("Authorization"); got != "Bearer rpt-cred" {
		t.Errorf("authorization = %q", got)
	}

	var resp adcp.GetMediaBuyDeliveryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if resp.NotificationType != "scheduled" {
		t.Errorf("notification_type = %q", resp.NotificationType)
	}
	if len(resp.MediaBuyDeliveries) != 1 || resp.MediaBuyDeliveries[0].MediaBuyID != "mb_report" {
		t.Errorf("deliveries = %+v", resp.MediaBuyDeliveries)
	}

	// Hourly reports land on the top of the hour after the fire.
	wantNext := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if resp.NextExpectedAt == nil || !resp.NextExpectedAt.Equal(wantNext) {
		t.Errorf("next_expected_at = %v, want %v", resp.NextExpectedAt, wantNext)
	}
	stored, err := store.GetMediaBuy(ctx, "t1", "mb_report")
	if err != nil {
		t.Fatalf("GetMediaBuy: %v", err)
	}
	if stored.NextReportAt == nil || !stored.NextReportAt.Equal(wantNext) {
		t.Errorf("stored next fire = %v, want %v", stored.NextReportAt, wantNext)
	}
}

func TestScheduledReportSlotFiresOnce(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	sched, store := reportFixture(t, srv.URL, 72*time.Hour)
	ctx := context.Background()
	sched.RunOnce(ctx)

	// Rewind the fire slot as a second racing instance would see it. The
	// redis slot lock is already held, so nothing fires again.
	buy, err := store.GetMediaBuy(ctx, "t1", "mb_report")
	if err != nil {
		t.Fatalf("GetMediaBuy: %v", err)
	}
	rewound := taskClock.Add(-5 * time.Minute)
	buy.NextReportAt = &rewound
	if err := store.UpdateMediaBuy(ctx, *buy); err != nil {
		t.Fatalf("UpdateMediaBuy: %v", err)
	}

	sched.RunOnce(ctx)
	if rec.count() != 1 {
		t.Errorf("deliveries = %d, want the duplicate slot suppressed", rec.count())
	}
}

func TestFinalReportUnsubscribes(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	// The flight ended an hour ago; this fire is the last one.
	sched, store := reportFixture(t, srv.URL, -time.Hour)
	ctx := context.Background()
	sched.RunOnce(ctx)

	if rec.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", rec.count())
	}
	body, _ := rec.last()
	var resp adcp.GetMediaBuyDeliveryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if resp.NextExpectedAt != nil {
		t.Errorf("final report still promises next_expected_at %v", resp.NextExpectedAt)
	}

	stored, err := store.GetMediaBuy(ctx, "t1", "mb_report")
	if err != nil {
		t.Fatalf("GetMediaBuy: %v", err)
	}
	if stored.NextReportAt != nil {
		t.Errorf("buy still scheduled at %v", stored.NextReportAt)
	}
}
