package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

// StatusScheduler walks media buys through their time-driven transitions:
// a provisioned buy goes active once its flight starts and its creatives
// clear review, and an active buy completes when the flight ends.
type StatusScheduler struct {
	store    models.Store
	metrics  observability.MetricsRegistry
	interval time.Duration
	now      func() time.Time
}

func NewStatusScheduler(store models.Store, metrics observability.MetricsRegistry, interval time.Duration) *StatusScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatusScheduler{store: store, metrics: metrics, interval: interval, now: time.Now}
}

// Run ticks until the context is canceled.
func (s *StatusScheduler) Run(ctx context.Context) {
	zap.L().Info("Status scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Status scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce applies one sweep of transitions.
func (s *StatusScheduler) RunOnce(ctx context.Context) {
	now := s.now().UTC()
	outcome := "ok"
	if err := s.activateStarted(ctx, now); err != nil {
		outcome = "error"
	}
	if err := s.completeEnded(ctx, now); err != nil {
		outcome = "error"
	}
	s.metrics.IncrementSchedulerRuns("status", outcome)
}

func (s *StatusScheduler) activateStarted(ctx context.Context, now time.Time) error {
	buys, err := s.store.MediaBuysByStatus(ctx, adcp.StatusPendingActivation, adcp.StatusScheduled)
	if err != nil {
		zap.L().Error("Pending media buy query failed", zap.Error(err))
		return err
	}
	for i := range buys {
		buy := &buys[i]
		if buy.StartTime.After(now) {
			continue
		}
		ready, err := s.creativesReady(ctx, buy)
		if err != nil {
			zap.L().Error("Creative readiness check failed",
				zap.String("media_buy_id", buy.MediaBuyID),
				zap.Error(err))
			continue
		}
		if !ready {
			continue
		}
		s.setStatus(ctx, buy, adcp.StatusActive)
	}
	return nil
}

func (s *StatusScheduler) completeEnded(ctx context.Context, now time.Time) error {
	buys, err := s.store.MediaBuysByStatus(ctx, adcp.StatusActive)
	if err != nil {
		zap.L().Error("Active media buy query failed", zap.Error(err))
		return err
	}
	for i := range buys {
		buy := &buys[i]
		if buy.EndTime.After(now) {
			continue
		}
		s.setStatus(ctx, buy, adcp.StatusCompleted)
	}
	return nil
}

// creativesReady requires at least one assigned creative and every assigned
// creative approved. A buy with nothing to serve stays parked even after its
// start time passes.
func (s *StatusScheduler) creativesReady(ctx context.Context, buy *models.MediaBuy) (bool, error) {
	assignments, err := s.store.ListAssignmentsByMediaBuy(ctx, buy.TenantID, buy.MediaBuyID)
	if err != nil {
		return false, err
	}
	if len(assignments) == 0 {
		return false, nil
	}
	for _, a := range assignments {
		c, err := s.store.GetCreative(ctx, buy.TenantID, a.CreativeID)
		if err != nil {
			return false, err
		}
		if c.Status != adcp.CreativeStatusApproved {
			return false, nil
		}
	}
	return true, nil
}

func (s *StatusScheduler) setStatus(ctx context.Context, buy *models.MediaBuy, status string) {
	from := buy.Status
	buy.Status = status
	if err := s.store.UpdateMediaBuy(ctx, *buy); err != nil {
		zap.L().Error("Media buy status transition failed",
			zap.String("media_buy_id", buy.MediaBuyID),
			zap.String("to", status),
			zap.Error(err))
		return
	}
	zap.L().Info("Media buy status advanced",
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.String("from", from),
		zap.String("to", status))
}
