package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/skills"
)

// reportSchedules aligns recurring fires to wall-clock boundaries per
// reporting frequency. The first fire after creation is one full interval
// out; everything after lands on these boundaries.
var reportSchedules = func() map[string]cron.Schedule {
	specs := map[string]string{
		adcp.FrequencyHourly:  "0 * * * *",
		adcp.FrequencyDaily:   "0 0 * * *",
		adcp.FrequencyMonthly: "0 0 1 * *",
	}
	out := make(map[string]cron.Schedule, len(specs))
	for freq, spec := range specs {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			panic("report schedule " + freq + ": " + err.Error())
		}
		out[freq] = sched
	}
	return out
}()

// ReportScheduler pushes scheduled delivery reports to media buys that
// registered a reporting_webhook. One logical scheduler runs per process;
// the Redis slot lock keeps multi-instance deployments from double-firing
// the same (media buy, slot) pair.
type ReportScheduler struct {
	store    models.Store
	adapters *adapters.Registry
	sender   *Sender
	redis    *db.RedisStore
	metrics  observability.MetricsRegistry
	poll     time.Duration
	now      func() time.Time
}

func NewReportScheduler(store models.Store, reg *adapters.Registry, sender *Sender, redis *db.RedisStore, metrics observability.MetricsRegistry, poll time.Duration) *ReportScheduler {
	if poll <= 0 {
		poll = 10 * time.Minute
	}
	return &ReportScheduler{
		store:    store,
		adapters: reg,
		sender:   sender,
		redis:    redis,
		metrics:  metrics,
		poll:     poll,
		now:      time.Now,
	}
}

// Run loops until the context is canceled, sleeping to the earlier of the
// poll interval and the next stored fire time.
func (s *ReportScheduler) Run(ctx context.Context) {
	zap.L().Info("Delivery report scheduler started", zap.Duration("poll", s.poll))
	for {
		wait := s.poll
		if next, err := s.store.NextReportTime(ctx); err == nil && next != nil {
			if d := next.Sub(s.now()); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			zap.L().Info("Delivery report scheduler stopped")
			return
		case <-time.After(wait):
			s.RunOnce(ctx)
		}
	}
}

// RunOnce fires every due report. Each fire advances its buy's next fire
// time whatever the webhook outcome, so a dead endpoint cannot wedge the
// schedule.
func (s *ReportScheduler) RunOnce(ctx context.Context) {
	due, err := s.store.MediaBuysDueForReport(ctx, s.now())
	if err != nil {
		s.metrics.IncrementSchedulerRuns("delivery_report", "error")
		zap.L().Error("Due report query failed", zap.Error(err))
		return
	}

	tenants := make(map[string]*models.Tenant)
	for i := range due {
		s.fire(ctx, &due[i], tenants)
	}
	s.metrics.IncrementSchedulerRuns("delivery_report", "ok")
}

func (s *ReportScheduler) fire(ctx context.Context, buy *models.MediaBuy, tenants map[string]*models.Tenant) {
	if buy.ReportingWebhook == nil || buy.NextReportAt == nil {
		return
	}
	slot := *buy.NextReportAt
	freq := buy.ReportingWebhook.ReportingFrequency
	interval, err := adcp.ReportInterval(freq)
	if err != nil {
		zap.L().Error("Media buy has an invalid reporting frequency, unsubscribing",
			zap.String("media_buy_id", buy.MediaBuyID),
			zap.String("frequency", freq))
		buy.NextReportAt = nil
		s.persist(ctx, buy)
		return
	}

	acquired, err := s.redis.AcquireReportLock(ctx, buy.MediaBuyID, slot, 2*interval)
	if err != nil {
		// Degrade to at-least-once rather than skipping the report.
		zap.L().Warn("Report slot lock unavailable", zap.Error(err))
	} else if !acquired {
		// Another instance owns this slot and will advance the buy.
		return
	}

	tenant, ok := tenants[buy.TenantID]
	if !ok {
		tenant, err = s.store.GetTenant(ctx, buy.TenantID)
		if err != nil {
			zap.L().Error("Tenant lookup failed for scheduled report",
				zap.String("tenant_id", buy.TenantID),
				zap.Error(err))
			return
		}
		tenants[buy.TenantID] = tenant
	}
	adapter, err := s.adapters.ForTenant(tenant)
	if err != nil {
		zap.L().Error("Adapter unavailable for scheduled report",
			zap.String("tenant_id", buy.TenantID),
			zap.Error(err))
		return
	}

	now := s.now().UTC()
	report, derrs := skills.BuildReport(ctx, adapter, []models.MediaBuy{*buy}, slot.Add(-interval), slot, now)

	resp := &adcp.GetMediaBuyDeliveryResponse{
		AdCPVersion:        adcp.Version,
		ReportingPeriod:    report.Period,
		Currency:           report.Currency,
		AggregatedTotals:   report.Totals,
		MediaBuyDeliveries: report.Deliveries,
		NotificationType:   "scheduled",
		Errors:             derrs,
	}

	// Reports continue past the flight end once, then the buy unsubscribes.
	if now.Before(buy.EndTime) {
		next := nextReportFire(freq, interval, slot, now)
		resp.NextExpectedAt = &next
		buy.NextReportAt = &next
	} else {
		buy.NextReportAt = nil
	}

	cfg := &models.PushNotificationConfig{URL: buy.ReportingWebhook.URL}
	if auth := buy.ReportingWebhook.Authentication; auth != nil {
		cfg.AuthSchemes = auth.Schemes
		cfg.Credentials = auth.Credentials
	}
	// Send logs and counts its own failures.
	_ = s.sender.Send(ctx, WebhookKindDeliveryReport, cfg, resp)

	s.persist(ctx, buy)
	zap.L().Info("Scheduled delivery report sent",
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.Time("slot", slot),
		zap.Int("domain_errors", len(derrs)))
}

func (s *ReportScheduler) persist(ctx context.Context, buy *models.MediaBuy) {
	if err := s.store.UpdateMediaBuy(ctx, *buy); err != nil {
		zap.L().Error("Next report time not persisted",
			zap.String("media_buy_id", buy.MediaBuyID),
			zap.Error(err))
	}
}

// nextReportFire computes the fire after slot, aligned to the frequency's
// wall-clock boundary. Slots missed during downtime are skipped, not
// backfilled.
func nextReportFire(freq string, interval time.Duration, slot, now time.Time) time.Time {
	base := slot
	if now.After(base) {
		base = now
	}
	if sched, ok := reportSchedules[freq]; ok {
		return sched.Next(base)
	}
	return base.Add(interval)
}
