package skills

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/ranker"
)

// GetProducts discovers sellable inventory for a brief or brand. Anonymous
// callers are allowed unless the tenant's brand manifest policy says
// otherwise, and they only see products with no principal allow-list.
type GetProducts struct {
	store  models.Store
	ranker *ranker.Client
}

func NewGetProducts(store models.Store, rk *ranker.Client) *GetProducts {
	return &GetProducts{store: store, ranker: rk}
}

func (s *GetProducts) Name() string       { return adcp.SkillGetProducts }
func (s *GetProducts) RequiresAuth() bool { return false }

func (s *GetProducts) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.GetProductsRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("get_products: %v", err)
	}

	manifest, err := adcp.NormalizeBrandManifest(req.BrandManifest)
	if err != nil {
		return nil, adcp.InvalidParamsf("get_products: %v", err)
	}
	if manifest == nil && req.PromotedOffering != "" {
		manifest = &adcp.BrandManifest{Name: req.PromotedOffering}
	}

	policy := tc.Tenant.BrandManifestPolicy
	if policy == "" {
		policy = models.BrandPolicyPublic
	}
	if policy == models.BrandPolicyRequireAuth && tc.Principal == nil {
		return nil, &adcp.TransportError{
			Kind:    adcp.KindMissingAuth,
			Message: "this publisher requires an authenticated caller for product discovery",
		}
	}
	if policy == models.BrandPolicyRequireBrand && manifest == nil {
		return nil, adcp.InvalidParamsf("this publisher requires a brand_manifest for product discovery")
	}
	if req.Brief == "" && manifest == nil {
		return nil, adcp.InvalidParamsf("either brief or brand_manifest is required")
	}

	all, err := s.store.ListProducts(ctx, tc.TenantID())
	if err != nil {
		return nil, storeError("list products", err)
	}

	// The format catalog is only needed when a filter inspects format
	// metadata.
	var formats map[string]adcp.Format
	if f := req.Filters; f != nil && (len(f.FormatTypes) > 0 || f.StandardFormatsOnly) {
		catalog, err := s.store.ListCreativeFormats(ctx)
		if err != nil {
			return nil, storeError("list creative formats", err)
		}
		formats = make(map[string]adcp.Format, len(catalog))
		for _, fm := range catalog {
			formats[fm.AgentURL+"#"+fm.FormatID] = fm
		}
	}

	now := tc.Now()
	caller := tc.PrincipalID()
	var matched []models.Product
	for _, p := range all {
		if !p.VisibleTo(caller) || p.Expired(now) {
			continue
		}
		if req.MinExposures > 0 && p.MinExposures < req.MinExposures {
			continue
		}
		if !matchesProductFilters(&p, req.Filters, formats) {
			continue
		}
		matched = append(matched, p)
	}

	matched = s.rankByBrief(ctx, req.Brief, manifest, matched)

	resp := &adcp.GetProductsResponse{AdCPVersion: adcp.Version, Products: make([]adcp.Product, 0, len(matched))}
	for i := range matched {
		resp.Products = append(resp.Products, matched[i].ToAdCP())
	}
	tc.Log().Debug("Products discovered",
		zap.Int("candidates", len(all)),
		zap.Int("returned", len(resp.Products)),
		zap.Bool("ranked", req.Brief != "" && s.ranker.Enabled()))
	return resp, nil
}

// rankByBrief reorders the catalog by brief relevance through the external
// ranking service. Ranking never adds or drops products.
func (s *GetProducts) rankByBrief(ctx context.Context, brief string, manifest *adcp.BrandManifest, products []models.Product) []models.Product {
	if brief == "" || len(products) < 2 || !s.ranker.Enabled() {
		return products
	}
	candidates := make([]ranker.Candidate, len(products))
	byID := make(map[string]models.Product, len(products))
	for i, p := range products {
		candidates[i] = ranker.Candidate{ProductID: p.ProductID, Name: p.Name, Description: p.Description}
		byID[p.ProductID] = p
	}
	offering := ""
	if manifest != nil {
		offering = manifest.Name
	}
	ranked := s.ranker.Rank(ctx, brief, offering, candidates)
	out := make([]models.Product, 0, len(products))
	for _, id := range ranked {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	if len(out) != len(products) {
		return products
	}
	return out
}

func matchesProductFilters(p *models.Product, f *adcp.ProductFilters, formats map[string]adcp.Format) bool {
	if f == nil {
		return true
	}
	if f.DeliveryType != "" && p.DeliveryType != f.DeliveryType {
		return false
	}
	if f.IsFixedPrice != nil && p.HasFixedPricing() != *f.IsFixedPrice {
		return false
	}
	if len(f.FormatIDs) > 0 && !acceptsAnyFormat(p.FormatIDs, f.FormatIDs) {
		return false
	}
	if len(f.FormatTypes) > 0 {
		ok := false
		for _, ref := range p.FormatIDs {
			if fm, found := formats[ref.String()]; found && f.FormatTypes.Contains(fm.Type) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.StandardFormatsOnly {
		// Unknown formats count as non-standard.
		for _, ref := range p.FormatIDs {
			fm, found := formats[ref.String()]
			if !found || !fm.IsStandard {
				return false
			}
		}
	}
	return true
}

func acceptsAnyFormat(have, want []adcp.FormatRef) bool {
	for _, w := range have {
		for _, r := range want {
			if w.ID == r.ID && (r.AgentURL == "" || strings.EqualFold(r.AgentURL, w.AgentURL)) {
				return true
			}
		}
	}
	return false
}
