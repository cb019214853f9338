package skills

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

func productIDs(resp Response) []string {
	out := resp.(*adcp.GetProductsResponse)
	ids := make([]string, 0, len(out.Products))
	for _, p := range out.Products {
		ids = append(ids, p.ProductID)
	}
	return ids
}

func TestGetProductsVisibility(t *testing.T) {
	store := seedStore(t)
	gp := NewGetProducts(store, nil)
	ctx := context.Background()
	brief := json.RawMessage(`{"brief": "display inventory for a retail campaign"}`)

	// Anonymous callers only see products without an allow-list.
	resp, terr := gp.Execute(ctx, toolCtx(t, store, ""), brief)
	if terr != nil {
		t.Fatalf("anonymous get_products: %+v", terr)
	}
	if ids := productIDs(resp); len(ids) != 1 || ids[0] != "prod_ros" {
		t.Errorf("anonymous sees %v", ids)
	}

	// The allow-listed principal sees both.
	resp, terr = gp.Execute(ctx, toolCtx(t, store, "p1"), brief)
	if terr != nil {
		t.Fatalf("p1 get_products: %+v", terr)
	}
	if ids := productIDs(resp); len(ids) != 2 {
		t.Errorf("p1 sees %v", ids)
	}

	// A principal outside the allow-list is treated like the public.
	resp, terr = gp.Execute(ctx, toolCtx(t, store, "p2"), brief)
	if terr != nil {
		t.Fatalf("p2 get_products: %+v", terr)
	}
	if ids := productIDs(resp); len(ids) != 1 || ids[0] != "prod_ros" {
		t.Errorf("p2 sees %v", ids)
	}
}

func TestGetProductsBrandManifestPolicies(t *testing.T) {
	store := seedStore(t)
	gp := NewGetProducts(store, nil)
	ctx := context.Background()

	anon := toolCtx(t, store, "")
	anon.Tenant.BrandManifestPolicy = models.BrandPolicyRequireAuth
	if _, terr := gp.Execute(ctx, anon, json.RawMessage(`{"brief": "anything"}`)); terr == nil || terr.Kind != adcp.KindMissingAuth {
		t.Errorf("require_auth anonymous = %+v, want missing auth", terr)
	}

	authed := toolCtx(t, store, "p1")
	authed.Tenant.BrandManifestPolicy = models.BrandPolicyRequireAuth
	if _, terr := gp.Execute(ctx, authed, json.RawMessage(`{"brief": "anything"}`)); terr != nil {
		t.Errorf("require_auth with principal = %+v", terr)
	}

	branded := toolCtx(t, store, "p1")
	branded.Tenant.BrandManifestPolicy = models.BrandPolicyRequireBrand
	if _, terr := gp.Execute(ctx, branded, json.RawMessage(`{"brief": "anything"}`)); terr == nil || terr.Kind != adcp.KindInvalidParams {
		t.Errorf("require_brand without manifest = %+v, want invalid params", terr)
	}
	// The legacy promoted_offering field still satisfies the policy.
	if _, terr := gp.Execute(ctx, branded, json.RawMessage(`{"promoted_offering": "Acme running shoes"}`)); terr != nil {
		t.Errorf("promoted_offering = %+v", terr)
	}
	// As does a bare manifest URL.
	if _, terr := gp.Execute(ctx, branded, json.RawMessage(`{"brand_manifest": "https://www.acme.example/brand.json"}`)); terr != nil {
		t.Errorf("brand_manifest URL = %+v", terr)
	}
}

func TestGetProductsRequiresBriefOrBrand(t *testing.T) {
	store := seedStore(t)
	gp := NewGetProducts(store, nil)
	if _, terr := gp.Execute(context.Background(), toolCtx(t, store, "p1"), json.RawMessage(`{}`)); terr == nil || terr.Kind != adcp.KindInvalidParams {
		t.Fatalf("empty request = %+v, want invalid params", terr)
	}
}

func TestGetProductsResponseOmitsInternalFields(t *testing.T) {
	store := seedStore(t)
	gp := NewGetProducts(store, nil)
	resp, terr := gp.Execute(context.Background(), toolCtx(t, store, "p1"), json.RawMessage(`{"brief": "everything"}`))
	if terr != nil {
		t.Fatalf("get_products: %+v", terr)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, leak := range []string{"allowed_principal_ids", "implementation_config", "inventory_profile"} {
		if strings.Contains(string(raw), leak) {
			t.Errorf("response leaks %q: %s", leak, raw)
		}
	}
}

func TestGetProductsFilters(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	if err := store.InsertProduct(ctx, &models.Product{
		TenantID:     "t1",
		ProductID:    "prod_bulk",
		Name:         "Bulk display",
		FormatIDs:    []adcp.FormatRef{displayFormat},
		DeliveryType: "non_guaranteed",
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "cpm_auction", PricingModel: "cpm", Currency: "USD", Rate: 2},
		},
		MinExposures: 500000,
	}); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}

	gp := NewGetProducts(store, nil)
	tc := toolCtx(t, store, "p1")

	cases := []struct {
		name   string
		params string
		want   []string
	}{
		{"delivery type", `{"brief": "b", "filters": {"delivery_type": "guaranteed"}}`, []string{"prod_private"}},
		{"fixed price only", `{"brief": "b", "filters": {"is_fixed_price": true}}`, []string{"prod_ros", "prod_private"}},
		{"auction only", `{"brief": "b", "filters": {"is_fixed_price": false}}`, []string{"prod_bulk"}},
		{"format id", `{"brief": "b", "filters": {"format_ids": [{"id": "display_300x250"}]}}`, []string{"prod_ros", "prod_private", "prod_bulk"}},
		{"format type misses", `{"brief": "b", "filters": {"format_types": "video"}}`, nil},
		{"standard formats", `{"brief": "b", "filters": {"standard_formats_only": true}}`, []string{"prod_ros", "prod_private", "prod_bulk"}},
		{"min exposures", `{"brief": "b", "min_exposures": 100000}`, []string{"prod_bulk"}},
	}
	for _, tt := range cases {
		resp, terr := gp.Execute(ctx, tc, json.RawMessage(tt.params))
		if terr != nil {
			t.Fatalf("%s: %+v", tt.name, terr)
		}
		got := productIDs(resp)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
			continue
		}
		want := map[string]bool{}
		for _, id := range tt.want {
			want[id] = true
		}
		for _, id := range got {
			if !want[id] {
				t.Errorf("%s: unexpected product %s", tt.name, id)
			}
		}
	}
}

func TestListCreativeFormatsFilters(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	if err := store.InsertCreativeFormat(ctx, adcp.Format{
		FormatID: "video_preroll_custom",
		AgentURL: "https://formats.examiner.test",
		Name:     "House preroll",
		Type:     adcp.FormatTypeVideo,
	}); err != nil {
		t.Fatalf("InsertCreativeFormat: %v", err)
	}

	lf := NewListCreativeFormats(store)
	tc := toolCtx(t, store, "")

	resp, terr := lf.Execute(ctx, tc, json.RawMessage(`{}`))
	if terr != nil {
		t.Fatalf("list_creative_formats: %+v", terr)
	}
	if got := len(resp.(*adcp.ListCreativeFormatsResponse).Formats); got != 2 {
		t.Fatalf("unfiltered formats = %d, want 2", got)
	}

	resp, terr = lf.Execute(ctx, tc, json.RawMessage(`{"type": "video"}`))
	if terr != nil {
		t.Fatalf("type filter: %+v", terr)
	}
	out := resp.(*adcp.ListCreativeFormatsResponse)
	if len(out.Formats) != 1 || out.Formats[0].FormatID != "video_preroll_custom" {
		t.Errorf("type filter = %+v", out.Formats)
	}

	resp, terr = lf.Execute(ctx, tc, json.RawMessage(`{"standard_only": true}`))
	if terr != nil {
		t.Fatalf("standard_only filter: %+v", terr)
	}
	out = resp.(*adcp.ListCreativeFormatsResponse)
	if len(out.Formats) != 1 || out.Formats[0].FormatID != "display_300x250" {
		t.Errorf("standard_only filter = %+v", out.Formats)
	}

	resp, terr = lf.Execute(ctx, tc, json.RawMessage(`{"format_ids": "display_300x250"}`))
	if terr != nil {
		t.Fatalf("format_ids filter: %+v", terr)
	}
	out = resp.(*adcp.ListCreativeFormatsResponse)
	if len(out.Formats) != 1 || out.Formats[0].FormatID != "display_300x250" {
		t.Errorf("format_ids filter = %+v", out.Formats)
	}
}

func TestListAuthorizedPropertiesDedupes(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	// A second profile that reuses the seeded property and adds a new one.
	if err := store.InsertInventoryProfile(ctx, &models.InventoryProfile{
		TenantID:  "t1",
		ProfileID: "prof_sports",
		Name:      "Sports section",
		AdUnits:   []string{"au_sports"},
		Properties: []adcp.Property{
			{
				PropertyType: adcp.PropertyTypeWebsite,
				Name:         "Daily Examiner",
				Identifiers:  []adcp.PropertyIdentifier{{Type: "domain", Value: "examiner.test"}},
			},
			{
				PropertyType: adcp.PropertyTypeMobileApp,
				Name:         "Examiner App",
				Identifiers:  []adcp.PropertyIdentifier{{Type: "bundle_id", Value: "test.examiner.app"}},
			},
		},
	}); err != nil {
		t.Fatalf("InsertInventoryProfile: %v", err)
	}

	lap := NewListAuthorizedProperties(store)
	resp, terr := lap.Execute(ctx, toolCtx(t, store, ""), json.RawMessage(`{"tags": ["ignored"]}`))
	if terr != nil {
		t.Fatalf("list_authorized_properties: %+v", terr)
	}
	out := resp.(*adcp.ListAuthorizedPropertiesResponse)
	if len(out.Properties) != 2 {
		t.Fatalf("properties = %+v, want the shared one deduped", out.Properties)
	}
	if len(out.PublisherDomains) != 1 || out.PublisherDomains[0] != "examiner.test" {
		t.Errorf("publisher domains = %v", out.PublisherDomains)
	}
}
