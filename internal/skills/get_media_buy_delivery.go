package skills

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// deliveryCacheTTL bounds how stale a replayed single-buy poll may be.
const deliveryCacheTTL = time.Minute

// GetMediaBuyDelivery reports delivered volume for the caller's buys. This
// is the polling path; it never fires webhooks, even for buys that carry a
// reporting subscription. The scheduler reuses BuildReport so pushed and
// polled reports agree.
type GetMediaBuyDelivery struct {
	store    models.Store
	adapters *adapters.Registry
	redis    *db.RedisStore
	now      func() time.Time
}

// NewGetMediaBuyDelivery constructs the delivery skill. redis may be nil;
// without it every poll recomputes from the adapter.
func NewGetMediaBuyDelivery(store models.Store, reg *adapters.Registry, redis *db.RedisStore) *GetMediaBuyDelivery {
	return &GetMediaBuyDelivery{store: store, adapters: reg, redis: redis, now: time.Now}
}

func (s *GetMediaBuyDelivery) Name() string       { return adcp.SkillGetMediaBuyDelivery }
func (s *GetMediaBuyDelivery) RequiresAuth() bool { return true }

func (s *GetMediaBuyDelivery) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.GetMediaBuyDeliveryRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("get_media_buy_delivery: %v", err)
	}

	startDate, err := adcp.ParseDate(req.StartDate)
	if err != nil {
		return nil, adcp.InvalidParamsf("start_date: %v", err)
	}
	endDate, err := adcp.ParseDate(req.EndDate)
	if err != nil {
		return nil, adcp.InvalidParamsf("end_date: %v", err)
	}

	// The common poll is one buy over its whole flight. That shape is
	// cached briefly so dashboards hammering the endpoint do not hammer
	// the analytics backend.
	cacheable := len(req.MediaBuyIDs) == 1 && len(req.BuyerRefs) == 0 &&
		len(req.StatusFilter) == 0 && req.StartDate == "" && req.EndDate == ""
	if cacheable {
		if data, err := s.redis.GetDeliverySnapshot(ctx, tc.TenantID(), tc.PrincipalID(), req.MediaBuyIDs[0]); err == nil && data != nil {
			var cached adcp.GetMediaBuyDeliveryResponse
			if json.Unmarshal(data, &cached) == nil {
				tc.Log().Debug("Delivery served from cache",
					zap.String("media_buy_id", req.MediaBuyIDs[0]))
				return &cached, nil
			}
		}
	}

	resp := &adcp.GetMediaBuyDeliveryResponse{AdCPVersion: adcp.Version, MediaBuyDeliveries: []adcp.MediaBuyDelivery{}}

	buys, derrs, terr := s.selectBuys(ctx, tc, &req)
	if terr != nil {
		return nil, terr
	}
	resp.Errors = append(resp.Errors, derrs...)

	adapter, aerr := s.adapters.ForTenant(tc.Tenant)
	if aerr != nil {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%v", aerr))
		return resp, nil
	}

	report, rerrs := BuildReport(ctx, adapter, buys, startDate, endDate, s.now().UTC())
	resp.ReportingPeriod = report.Period
	resp.Currency = report.Currency
	resp.AggregatedTotals = report.Totals
	resp.MediaBuyDeliveries = report.Deliveries
	resp.Errors = append(resp.Errors, rerrs...)

	if cacheable && len(resp.Errors) == 0 {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.redis.CacheDeliverySnapshot(ctx, tc.TenantID(), tc.PrincipalID(), req.MediaBuyIDs[0], data, deliveryCacheTTL); err != nil {
				tc.Log().Warn("Delivery snapshot cache write failed", zap.Error(err))
			}
		}
	}

	tc.Log().Debug("Delivery reported",
		zap.Int("media_buys", len(resp.MediaBuyDeliveries)),
		zap.Int64("impressions", resp.AggregatedTotals.Impressions))
	return resp, nil
}

// selectBuys resolves the request's id or ref lists, falling back to every
// buy the principal owns. Explicit ids that do not resolve to a buy the
// caller owns surface as unknown_media_buy, never as permission_denied.
func (s *GetMediaBuyDelivery) selectBuys(ctx context.Context, tc *ToolContext, req *adcp.GetMediaBuyDeliveryRequest) ([]models.MediaBuy, []adcp.Error, *adcp.TransportError) {
	var (
		buys  []models.MediaBuy
		derrs []adcp.Error
	)
	switch {
	case len(req.MediaBuyIDs) > 0:
		for _, id := range req.MediaBuyIDs {
			buy, err := s.store.GetMediaBuy(ctx, tc.TenantID(), id)
			if err != nil || buy.PrincipalID != tc.PrincipalID() {
				if err != nil && !errors.Is(err, models.ErrNotFound) {
					return nil, nil, storeError("load media buy", err)
				}
				derrs = append(derrs, adcp.Errorf(adcp.ErrCodeUnknownMediaBuy, "media buy %q not found", id))
				continue
			}
			buys = append(buys, *buy)
		}
	case len(req.BuyerRefs) > 0:
		for _, ref := range req.BuyerRefs {
			buy, err := s.store.GetMediaBuyByBuyerRef(ctx, tc.TenantID(), tc.PrincipalID(), ref)
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) {
					return nil, nil, storeError("load media buy", err)
				}
				derrs = append(derrs, adcp.Errorf(adcp.ErrCodeUnknownMediaBuy, "buyer_ref %q not found", ref))
				continue
			}
			buys = append(buys, *buy)
		}
	default:
		all, err := s.store.ListMediaBuys(ctx, tc.TenantID())
		if err != nil {
			return nil, nil, storeError("list media buys", err)
		}
		for _, buy := range all {
			if buy.PrincipalID == tc.PrincipalID() {
				buys = append(buys, buy)
			}
		}
	}

	if len(req.StatusFilter) > 0 {
		filtered := buys[:0]
		for _, buy := range buys {
			if req.StatusFilter.Contains(buy.Status) {
				filtered = append(filtered, buy)
			}
		}
		buys = filtered
	}
	return buys, derrs, nil
}

// Report is an assembled delivery report for a set of buys.
type Report struct {
	Period     *adcp.ReportingPeriod
	Currency   string
	Totals     adcp.DeliveryTotals
	Deliveries []adcp.MediaBuyDelivery
}

// BuildReport fetches delivery for each buy through the adapter and
// aggregates the totals. Requested date bounds are optional; each buy is
// clamped to its own flight window and to now. Per-buy adapter failures
// become domain errors and do not abort the rest of the report.
func BuildReport(ctx context.Context, adapter adapters.Adapter, buys []models.MediaBuy, startDate, endDate, now time.Time) (*Report, []adcp.Error) {
	report := &Report{Deliveries: make([]adcp.MediaBuyDelivery, 0, len(buys))}
	var derrs []adcp.Error

	var periodStart, periodEnd time.Time
	for i := range buys {
		buy := &buys[i]

		start := buy.StartTime
		if !startDate.IsZero() && startDate.After(start) {
			start = startDate
		}
		end := now
		if buy.EndTime.Before(end) {
			end = buy.EndTime
		}
		if !endDate.IsZero() && endDate.Before(end) {
			end = endDate
		}

		result, err := adapter.GetDelivery(ctx, &adapters.DeliveryRequest{MediaBuy: buy, Start: start, End: end})
		if err != nil {
			derrs = append(derrs, adcp.Errorf(adcp.ErrCodeAdapter,
				"delivery for %s: %v", buy.MediaBuyID, err))
			continue
		}

		report.Deliveries = append(report.Deliveries, adcp.MediaBuyDelivery{
			MediaBuyID: buy.MediaBuyID,
			BuyerRef:   buy.BuyerRef,
			Status:     buy.Status,
			Totals:     result.Totals,
			ByPackage:  result.ByPackage,
		})
		report.Totals.Impressions += result.Totals.Impressions
		report.Totals.Spend += result.Totals.Spend
		report.Totals.Clicks += result.Totals.Clicks
		report.Totals.Completions += result.Totals.Completions
		if report.Currency == "" {
			report.Currency = buy.Currency
		}
		if periodStart.IsZero() || start.Before(periodStart) {
			periodStart = start
		}
		if end.After(periodEnd) {
			periodEnd = end
		}
	}

	if !periodStart.IsZero() {
		report.Period = &adcp.ReportingPeriod{Start: periodStart, End: periodEnd}
	}
	return report, derrs
}
