package skills

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// UpdateMediaBuy mutates an existing buy. Every requested change is
// validated before anything is written, so a rejected update leaves the buy
// exactly as it was.
type UpdateMediaBuy struct {
	store    models.Store
	adapters *adapters.Registry
	now      func() time.Time
}

func NewUpdateMediaBuy(store models.Store, reg *adapters.Registry) *UpdateMediaBuy {
	return &UpdateMediaBuy{store: store, adapters: reg, now: time.Now}
}

func (s *UpdateMediaBuy) Name() string       { return adcp.SkillUpdateMediaBuy }
func (s *UpdateMediaBuy) RequiresAuth() bool { return true }

func (s *UpdateMediaBuy) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.UpdateMediaBuyRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("update_media_buy: %v", err)
	}
	if (req.MediaBuyID == "") == (req.BuyerRef == "") {
		return nil, adcp.InvalidParamsf("provide exactly one of media_buy_id or buyer_ref")
	}

	buy, terr := loadOwnedMediaBuy(ctx, s.store, tc, req.MediaBuyID, req.BuyerRef)
	if terr != nil {
		return nil, terr
	}

	resp := &adcp.UpdateMediaBuyResponse{
		AdCPVersion: adcp.Version,
		MediaBuyID:  buy.MediaBuyID,
		BuyerRef:    buy.BuyerRef,
	}
	if buy.Status == adcp.StatusSubmitted {
		resp.Status = buy.Status
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeValidation,
			"media buy %s is awaiting approval and cannot be updated", buy.MediaBuyID))
		return resp, nil
	}

	// The legacy active flag inverts into paused when paused is absent.
	paused := req.Paused
	if paused == nil && req.Active != nil {
		inverted := !*req.Active
		paused = &inverted
	}

	updated := *buy
	updated.Packages = make([]models.Package, len(buy.Packages))
	copy(updated.Packages, buy.Packages)

	var affected []string
	rebind := make(map[string][]string)
	for _, pu := range req.Packages {
		ref := pu.PackageID
		if ref == "" {
			ref = pu.BuyerRef
		}
		pkg := updated.FindPackage(ref)
		if pkg == nil {
			resp.Status = buy.Status
			resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeUnknownPackage,
				"media buy %s has no package %q", buy.MediaBuyID, ref))
			return resp, nil
		}
		if pu.Paused != nil {
			pkg.Paused = *pu.Paused
		}
		if pu.Budget != nil {
			pkg.Budget = pu.Budget
		}
		if pu.Impressions > 0 {
			pkg.Impressions = pu.Impressions
		}
		// A non-nil creative_ids replaces the package's creative set; an
		// explicit empty list clears it.
		if pu.CreativeIDs != nil {
			for _, creativeID := range pu.CreativeIDs {
				if c, err := s.store.GetCreative(ctx, tc.TenantID(), creativeID); err != nil || c.PrincipalID != tc.PrincipalID() {
					resp.Status = buy.Status
					resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAssignment,
						"package %s: creative %q not found", ref, creativeID))
					return resp, nil
				}
			}
			rebind[pkg.PackageID] = pu.CreativeIDs
		}
		affected = append(affected, pkg.PackageID)
	}

	if req.Budget != nil {
		updated.Budget = req.Budget
	}
	if req.StartTime != nil {
		updated.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		updated.EndTime = *req.EndTime
	}
	if !updated.EndTime.After(updated.StartTime) {
		return nil, adcp.InvalidParamsf("end_time must be after start_time")
	}
	if paused != nil {
		updated.Status = s.pauseStatus(*paused, &updated)
	}

	adapter, aerr := s.adapters.ForTenant(tc.Tenant)
	if aerr != nil {
		resp.Status = buy.Status
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%v", aerr))
		return resp, nil
	}
	result, err := adapter.UpdateMediaBuy(ctx, &adapters.UpdateRequest{
		Principal:        tc.Principal,
		MediaBuy:         &updated,
		AffectedPackages: affected,
	})
	if err != nil {
		resp.Status = buy.Status
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%s: %v", adapter.Name(), err))
		return resp, nil
	}

	if err := s.store.UpdateMediaBuy(ctx, updated); err != nil {
		return nil, storeError("persist media buy update", err)
	}
	if terr := s.rebindCreatives(ctx, tc, buy.MediaBuyID, rebind); terr != nil {
		return nil, terr
	}

	resp.Status = updated.Status
	resp.AffectedPackages = affected
	resp.ImplementationDate = result.ImplementationDate
	tc.Log().Info("Media buy updated",
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.Strings("affected_packages", affected),
		zap.String("status", updated.Status))
	return resp, nil
}

// rebindCreatives reconciles each updated package's assignments toward the
// requested set: bindings not in the set are removed, missing ones added.
func (s *UpdateMediaBuy) rebindCreatives(ctx context.Context, tc *ToolContext, mediaBuyID string, rebind map[string][]string) *adcp.TransportError {
	if len(rebind) == 0 {
		return nil
	}
	existing, err := s.store.ListAssignmentsByMediaBuy(ctx, tc.TenantID(), mediaBuyID)
	if err != nil {
		return storeError("list assignments", err)
	}

	packageIDs := make([]string, 0, len(rebind))
	for id := range rebind {
		packageIDs = append(packageIDs, id)
	}
	sort.Strings(packageIDs)

	for _, packageID := range packageIDs {
		want := make(map[string]bool, len(rebind[packageID]))
		for _, creativeID := range rebind[packageID] {
			want[creativeID] = true
		}
		for _, a := range existing {
			if a.PackageID != packageID {
				continue
			}
			if want[a.CreativeID] {
				delete(want, a.CreativeID)
				continue
			}
			if err := s.store.UnassignCreative(ctx, tc.TenantID(), a.CreativeID, mediaBuyID, packageID); err != nil {
				return storeError("unassign creative", err)
			}
		}
		missing := make([]string, 0, len(want))
		for creativeID := range want {
			missing = append(missing, creativeID)
		}
		sort.Strings(missing)
		for _, creativeID := range missing {
			a := &models.CreativeAssignment{
				TenantID:     tc.TenantID(),
				AssignmentID: "asg_" + uuid.NewString()[:8],
				CreativeID:   creativeID,
				MediaBuyID:   mediaBuyID,
				PackageID:    packageID,
			}
			if err := s.store.AssignCreative(ctx, a); err != nil {
				return storeError("assign creative", err)
			}
		}
	}
	return nil
}

// loadOwnedMediaBuy resolves a buy by id or buyer_ref and enforces
// ownership. A buy owned by another principal is a permission_denied, per
// the update contract; lookups by buyer_ref are principal-scoped already and
// cannot cross over.
func loadOwnedMediaBuy(ctx context.Context, store models.Store, tc *ToolContext, id, ref string) (*models.MediaBuy, *adcp.TransportError) {
	var (
		buy *models.MediaBuy
		err error
	)
	if id != "" {
		buy, err = store.GetMediaBuy(ctx, tc.TenantID(), id)
	} else {
		buy, err = store.GetMediaBuyByBuyerRef(ctx, tc.TenantID(), tc.PrincipalID(), ref)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, adcp.NotFoundf("media buy not found")
		}
		return nil, storeError("load media buy", err)
	}
	if buy.PrincipalID != tc.PrincipalID() {
		return nil, adcp.PermissionDenied("media buy belongs to a different principal")
	}
	return buy, nil
}

// pauseStatus maps the paused flag onto a lifecycle status using the flight
// window.
func (s *UpdateMediaBuy) pauseStatus(paused bool, buy *models.MediaBuy) string {
	if paused {
		return adcp.StatusPaused
	}
	now := s.now().UTC()
	switch {
	case now.Before(buy.StartTime):
		return adcp.StatusScheduled
	case now.After(buy.EndTime):
		return adcp.StatusCompleted
	default:
		return adcp.StatusActive
	}
}
