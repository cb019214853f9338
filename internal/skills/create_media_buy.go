package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// CreateMediaBuy provisions an order against the tenant's ad server, or
// parks it as submitted when the tenant (or its backend) requires human
// approval. The inventory profile referenced by each product is resolved
// into the adapter's implementation config here, at buy time, so profile
// edits after purchase never retroactively change an order.
type CreateMediaBuy struct {
	store    models.Store
	adapters *adapters.Registry
	now      func() time.Time
}

func NewCreateMediaBuy(store models.Store, reg *adapters.Registry) *CreateMediaBuy {
	return &CreateMediaBuy{store: store, adapters: reg, now: time.Now}
}

func (s *CreateMediaBuy) Name() string       { return adcp.SkillCreateMediaBuy }
func (s *CreateMediaBuy) RequiresAuth() bool { return true }

func (s *CreateMediaBuy) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.CreateMediaBuyRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("create_media_buy: %v", err)
	}

	if terr := validateCreateRequest(&req); terr != nil {
		return nil, terr
	}

	now := s.now().UTC()
	start := req.StartTime.Resolve(now)
	end := *req.EndTime
	if !end.After(start) {
		return nil, adcp.InvalidParamsf("end_time must be after start_time")
	}

	resp := &adcp.CreateMediaBuyResponse{AdCPVersion: adcp.Version, BuyerRef: req.BuyerRef}

	if _, err := s.store.GetMediaBuyByBuyerRef(ctx, tc.TenantID(), tc.PrincipalID(), req.BuyerRef); err == nil {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeDuplicateRef,
			"buyer_ref %q was already used by this principal", req.BuyerRef))
		return resp, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, storeError("buyer_ref lookup", err)
	}

	buy := &models.MediaBuy{
		TenantID:         tc.TenantID(),
		MediaBuyID:       "mb_" + uuid.NewString()[:8],
		PrincipalID:      tc.PrincipalID(),
		BuyerRef:         req.BuyerRef,
		PromotedOffering: req.PromotedOffering,
		PONumber:         req.PONumber,
		Budget:           req.Budget,
		StartTime:        start,
		EndTime:          end,
		RawRequest:       params,
	}
	if manifest, err := adcp.NormalizeBrandManifest(req.BrandManifest); err != nil {
		return nil, adcp.InvalidParamsf("create_media_buy: %v", err)
	} else if manifest != nil && buy.PromotedOffering == "" {
		buy.PromotedOffering = manifest.Name
	}

	implConfig := make(map[string]json.RawMessage, len(req.Packages))
	var bindings []models.CreativeAssignment
	for i := range req.Packages {
		pkg, cfg, derrs := s.resolvePackage(ctx, tc, &req.Packages[i])
		if len(derrs) > 0 {
			resp.Errors = append(resp.Errors, derrs...)
			continue
		}
		buy.Packages = append(buy.Packages, *pkg)
		if cfg != nil {
			implConfig[pkg.PackageID] = cfg
		}
		for _, creativeID := range req.Packages[i].CreativeIDs {
			bindings = append(bindings, models.CreativeAssignment{
				TenantID:   tc.TenantID(),
				CreativeID: creativeID,
				MediaBuyID: buy.MediaBuyID,
				PackageID:  pkg.PackageID,
			})
		}
		if buy.Currency == "" && pkg.Budget != nil {
			buy.Currency = pkg.Budget.Currency
		}
	}
	if len(resp.Errors) > 0 {
		return resp, nil
	}
	if buy.Currency == "" && req.Budget != nil {
		buy.Currency = req.Budget.Currency
	}

	if req.ReportingWebhook != nil {
		interval, err := adcp.ReportInterval(req.ReportingWebhook.ReportingFrequency)
		if err != nil {
			return nil, adcp.InvalidParamsf("reporting_webhook: %v", err)
		}
		buy.ReportingWebhook = req.ReportingWebhook
		next := now.Add(interval)
		buy.NextReportAt = &next
	}

	adapter, aerr := s.adapters.ForTenant(tc.Tenant)
	if aerr != nil {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%v", aerr))
		return resp, nil
	}

	if tc.Tenant.HumanReviewRequired || adapter.ManualApprovalRequired() {
		return s.submitForReview(ctx, tc, buy, bindings, resp)
	}

	result, err := adapter.CreateMediaBuy(ctx, &adapters.CreateRequest{
		Principal:            tc.Principal,
		MediaBuy:             buy,
		ImplementationConfig: implConfig,
	})
	if err != nil {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%s: %v", adapter.Name(), err))
		return resp, nil
	}
	buy.Status = result.Status
	buy.AdapterOrderID = result.OrderID

	if err := s.store.InsertMediaBuy(ctx, buy); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			tc.Log().Warn("Media buy insert lost a buyer_ref race, adapter order orphaned",
				zap.String("order_id", result.OrderID))
			resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeDuplicateRef,
				"buyer_ref %q was already used by this principal", req.BuyerRef))
			return resp, nil
		}
		return nil, storeError("persist media buy", err)
	}
	if terr := s.bindCreatives(ctx, bindings); terr != nil {
		return nil, terr
	}

	resp.MediaBuyID = buy.MediaBuyID
	resp.Status = buy.Status
	resp.Packages = packageResults(buy, result.LineItems)
	if deadline := start.Add(-24 * time.Hour); deadline.After(now) {
		resp.CreativeDeadline = &deadline
	}
	tc.Log().Info("Media buy created",
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.String("status", buy.Status),
		zap.Int("packages", len(buy.Packages)),
		zap.Float64("total_budget", buy.TotalBudget()))
	return resp, nil
}

// submitForReview persists the buy in submitted and opens an approval step
// so an operator can release it through the management API. The adapter is
// not called until approval.
func (s *CreateMediaBuy) submitForReview(ctx context.Context, tc *ToolContext, buy *models.MediaBuy, bindings []models.CreativeAssignment, resp *adcp.CreateMediaBuyResponse) (Response, *adcp.TransportError) {
	buy.Status = adcp.StatusSubmitted
	if err := s.store.InsertMediaBuy(ctx, buy); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeDuplicateRef,
				"buyer_ref %q was already used by this principal", buy.BuyerRef))
			return resp, nil
		}
		return nil, storeError("persist media buy", err)
	}
	if terr := s.bindCreatives(ctx, bindings); terr != nil {
		return nil, terr
	}

	if tc.TaskID != "" {
		step := &models.WorkflowStep{
			TenantID: tc.TenantID(),
			StepID:   "step_" + uuid.NewString()[:8],
			TaskID:   tc.TaskID,
			StepType: models.StepTypeApproval,
			Status:   models.StepStatusPending,
			Mappings: []models.ObjectMapping{{ObjectType: "media_buy", ObjectID: buy.MediaBuyID}},
		}
		if err := s.store.InsertWorkflowStep(ctx, step); err != nil {
			tc.Log().Warn("Approval step not recorded", zap.Error(err))
		}
	}

	resp.MediaBuyID = buy.MediaBuyID
	resp.Status = adcp.StatusSubmitted
	for _, pkg := range buy.Packages {
		resp.Packages = append(resp.Packages, adcp.PackageResult{
			PackageID: pkg.PackageID,
			BuyerRef:  pkg.BuyerRef,
			ProductID: pkg.ProductID,
			Status:    adcp.StatusSubmitted,
		})
	}
	tc.Log().Info("Media buy submitted for review",
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.Float64("total_budget", buy.TotalBudget()))
	return resp, nil
}

// bindCreatives writes the create-time creative assignments. Ownership was
// checked during package resolution.
func (s *CreateMediaBuy) bindCreatives(ctx context.Context, bindings []models.CreativeAssignment) *adcp.TransportError {
	for i := range bindings {
		bindings[i].AssignmentID = "asg_" + uuid.NewString()[:8]
		if err := s.store.AssignCreative(ctx, &bindings[i]); err != nil {
			return storeError("assign creative", err)
		}
	}
	return nil
}

// resolvePackage validates one package request against the catalog and
// builds its persisted form plus the adapter implementation config.
func (s *CreateMediaBuy) resolvePackage(ctx context.Context, tc *ToolContext, in *adcp.PackageRequest) (*models.Package, json.RawMessage, []adcp.Error) {
	var derrs []adcp.Error
	productID := in.ResolveProductID()
	if in.BuyerRef == "" || productID == "" || in.PricingOptionID == "" {
		derrs = append(derrs, adcp.Errorf(adcp.ErrCodeValidation,
			"package requires buyer_ref, product_id and pricing_option_id"))
		return nil, nil, derrs
	}

	product, err := s.store.GetProduct(ctx, tc.TenantID(), productID)
	if err != nil || !product.VisibleTo(tc.PrincipalID()) {
		derrs = append(derrs, adcp.Errorf(adcp.ErrCodeUnknownProduct,
			"product %q not found", productID))
		return nil, nil, derrs
	}

	opt := product.PricingOption(in.PricingOptionID)
	if opt == nil {
		derrs = append(derrs, adcp.Errorf(adcp.ErrCodeUnknownPricing,
			"product %q has no pricing option %q", productID, in.PricingOptionID))
		return nil, nil, derrs
	}

	budget := in.Budget
	if budget != nil && budget.Currency == "" {
		budget.Currency = opt.Currency
	}
	if opt.MinSpendPerPackage > 0 && (budget == nil || budget.Total < opt.MinSpendPerPackage) {
		derrs = append(derrs, adcp.Errorf(adcp.ErrCodeValidation,
			"package %s budget is below the %.2f %s minimum for pricing option %s",
			in.BuyerRef, opt.MinSpendPerPackage, opt.Currency, opt.PricingOptionID))
		return nil, nil, derrs
	}

	// Creatives named on the package are bound at creation so the buy can
	// go live as soon as review clears. They must already be in the
	// caller's library.
	for _, creativeID := range in.CreativeIDs {
		if c, err := s.store.GetCreative(ctx, tc.TenantID(), creativeID); err != nil || c.PrincipalID != tc.PrincipalID() {
			derrs = append(derrs, adcp.Errorf(adcp.ErrCodeAssignment,
				"package %s: creative %q not found", in.BuyerRef, creativeID))
		}
	}
	if len(derrs) > 0 {
		return nil, nil, derrs
	}

	pkg := &models.Package{
		PackageID:        "pkg_" + uuid.NewString()[:8],
		BuyerRef:         in.BuyerRef,
		ProductID:        product.ProductID,
		PricingOptionID:  opt.PricingOptionID,
		Budget:           budget,
		Impressions:      in.Impressions,
		TargetingOverlay: in.TargetingOverlay,
	}

	cfg, err := implementationConfig(ctx, s.store, tc.TenantID(), product)
	if err != nil {
		derrs = append(derrs, adcp.Errorf(adcp.ErrCodeValidation, "%v", err))
		return nil, nil, derrs
	}
	return pkg, cfg, nil
}

// implementationConfig merges the product's static ad server settings with
// the current state of its inventory profile.
func implementationConfig(ctx context.Context, store models.Store, tenantID string, product *models.Product) (json.RawMessage, error) {
	cfg := make(map[string]any, len(product.ImplementationConfig)+3)
	for k, v := range product.ImplementationConfig {
		cfg[k] = v
	}
	if product.InventoryProfileID != "" {
		profile, err := store.GetInventoryProfile(ctx, tenantID, product.InventoryProfileID)
		if err != nil {
			return nil, fmt.Errorf("product %q references missing inventory profile %q",
				product.ProductID, product.InventoryProfileID)
		}
		cfg["ad_units"] = profile.AdUnits
		cfg["placements"] = profile.Placements
	}
	if len(product.FormatIDs) > 0 {
		cfg["format_ids"] = product.FormatIDs
	}
	if len(cfg) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode implementation config: %w", err)
	}
	return raw, nil
}

func validateCreateRequest(req *adcp.CreateMediaBuyRequest) *adcp.TransportError {
	var missing []string
	if req.BuyerRef == "" {
		missing = append(missing, "buyer_ref")
	}
	if len(req.Packages) == 0 {
		missing = append(missing, "packages")
	}
	if req.EndTime == nil {
		missing = append(missing, "end_time")
	}
	if len(missing) > 0 {
		return adcp.InvalidParamsf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func packageResults(buy *models.MediaBuy, items []adapters.LineItem) []adcp.PackageResult {
	statusByPkg := make(map[string]string, len(items))
	for _, li := range items {
		statusByPkg[li.PackageID] = li.Status
	}
	out := make([]adcp.PackageResult, 0, len(buy.Packages))
	for _, pkg := range buy.Packages {
		st := statusByPkg[pkg.PackageID]
		if st == "" {
			st = buy.Status
		}
		out = append(out, adcp.PackageResult{
			PackageID: pkg.PackageID,
			BuyerRef:  pkg.BuyerRef,
			ProductID: pkg.ProductID,
			Status:    st,
		})
	}
	return out
}
