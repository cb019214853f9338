package skills

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// UpdatePerformanceIndex stores buyer-reported package indices and forwards
// them to backends that can act on them.
type UpdatePerformanceIndex struct {
	store    models.Store
	adapters *adapters.Registry
}

func NewUpdatePerformanceIndex(store models.Store, reg *adapters.Registry) *UpdatePerformanceIndex {
	return &UpdatePerformanceIndex{store: store, adapters: reg}
}

func (s *UpdatePerformanceIndex) Name() string       { return adcp.SkillUpdatePerformanceIndex }
func (s *UpdatePerformanceIndex) RequiresAuth() bool { return true }

func (s *UpdatePerformanceIndex) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.UpdatePerformanceIndexRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("update_performance_index: %v", err)
	}
	if req.MediaBuyID == "" && req.BuyerRef == "" {
		return nil, adcp.InvalidParamsf("media_buy_id or buyer_ref is required")
	}
	if len(req.PerformanceData) == 0 {
		return nil, adcp.InvalidParamsf("performance_data must not be empty")
	}

	buy, terr := loadOwnedMediaBuy(ctx, s.store, tc, req.MediaBuyID, req.BuyerRef)
	if terr != nil {
		return nil, terr
	}

	resp := &adcp.UpdatePerformanceIndexResponse{AdCPVersion: adcp.Version, MediaBuyID: buy.MediaBuyID}

	applied := 0
	for _, perf := range req.PerformanceData {
		pkg := buy.FindPackage(perf.PackageID)
		if pkg == nil {
			resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeUnknownPackage,
				"media buy %s has no package %q", buy.MediaBuyID, perf.PackageID))
			continue
		}
		pkg.PerformanceIndex = perf.PerformanceIndex
		applied++
	}

	switch {
	case applied == 0:
		resp.Status = "failed"
		return resp, nil
	case len(resp.Errors) > 0:
		resp.Status = "partial"
	default:
		resp.Status = "accepted"
	}

	if err := s.store.UpdateMediaBuy(ctx, *buy); err != nil {
		return nil, storeError("persist performance index", err)
	}

	if adapter, aerr := s.adapters.ForTenant(tc.Tenant); aerr == nil {
		forwarded, err := adapter.UpdatePerformanceIndex(ctx, buy.MediaBuyID, req.PerformanceData)
		if err != nil {
			resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%s: %v", adapter.Name(), err))
		} else if forwarded {
			tc.Log().Debug("Performance index forwarded to adapter",
				zap.String("media_buy_id", buy.MediaBuyID),
				zap.String("adapter", adapter.Name()))
		}
	}

	tc.Log().Info("Performance index updated",
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.Int("packages", applied))
	return resp, nil
}
