package models

import (
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

func TestProductVisibleTo(t *testing.T) {
	public := Product{ProductID: "run_of_site"}
	restricted := Product{ProductID: "homepage_takeover", AllowedPrincipalIDs: []string{"acme"}}

	if !public.VisibleTo("anyone") {
		t.Error("product without allow-list should be visible to any principal")
	}
	if !public.VisibleTo("") {
		t.Error("product without allow-list should be visible anonymously")
	}
	if !restricted.VisibleTo("acme") {
		t.Error("allow-listed principal should see the product")
	}
	if restricted.VisibleTo("rival") {
		t.Error("non-listed principal must not see the product")
	}
	if restricted.VisibleTo("") {
		t.Error("anonymous callers must not see restricted products")
	}
}

func TestProductToAdCPStripsInternals(t *testing.T) {
	p := Product{
		TenantID:             "pub",
		ProductID:            "sports_video",
		Name:                 "Sports Video",
		DeliveryType:         adcp.DeliveryTypeGuaranteed,
		AllowedPrincipalIDs:  []string{"acme"},
		InventoryProfileID:   "profile-1",
		ImplementationConfig: map[string]any{"placement_id": "123"},
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "cpm_usd", PricingModel: adcp.PricingModelCPM, Currency: "USD", Rate: 22, IsFixed: true},
		},
	}
	wire := p.ToAdCP()
	if wire.ProductID != "sports_video" || len(wire.PricingOptions) != 1 {
		t.Fatalf("wire view lost core fields: %+v", wire)
	}
	// The wire struct has no allow-list, profile or implementation fields;
	// this test documents that the stripping is structural.
	if wire.Name != p.Name || wire.DeliveryType != p.DeliveryType {
		t.Errorf("wire view mismatch: %+v", wire)
	}
}

func TestMediaBuyFlightProgress(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * 24 * time.Hour)
	mb := MediaBuy{StartTime: start, EndTime: end}

	if got := mb.FlightProgress(start.Add(-time.Hour)); got != 0 {
		t.Errorf("before flight: got %v, want 0", got)
	}
	if got := mb.FlightProgress(start.Add(5 * 24 * time.Hour)); got < 0.49 || got > 0.51 {
		t.Errorf("mid flight: got %v, want ~0.5", got)
	}
	if got := mb.FlightProgress(end.Add(time.Hour)); got != 1 {
		t.Errorf("after flight: got %v, want 1", got)
	}
}

func TestMediaBuyTotalBudget(t *testing.T) {
	mb := MediaBuy{
		Budget: &adcp.Budget{Total: 9000, Currency: "USD"},
		Packages: []Package{
			{PackageID: "pkg_1", Budget: &adcp.Budget{Total: 3000, Currency: "USD"}},
			{PackageID: "pkg_2", Budget: &adcp.Budget{Total: 2500, Currency: "USD"}},
			{PackageID: "pkg_3"},
		},
	}
	if got := mb.TotalBudget(); got != 5500 {
		t.Errorf("package budgets: got %v, want 5500", got)
	}

	// Without package budgets the order-level budget stands in.
	mb.Packages[0].Budget = nil
	mb.Packages[1].Budget = nil
	if got := mb.TotalBudget(); got != 9000 {
		t.Errorf("order fallback: got %v, want 9000", got)
	}

	if got := (&MediaBuy{}).TotalBudget(); got != 0 {
		t.Errorf("no budgets: got %v, want 0", got)
	}
}

func TestTenantAutoApproves(t *testing.T) {
	ref := adcp.FormatRef{AgentURL: adcp.DefaultFormatAgentURL, ID: "banner_300x250"}
	tenant := Tenant{AutoApproveFormatIDs: []adcp.FormatRef{ref}}

	if !tenant.AutoApproves(ref) {
		t.Error("listed format should auto approve")
	}
	if tenant.AutoApproves(adcp.FormatRef{AgentURL: adcp.DefaultFormatAgentURL, ID: "video_15s"}) {
		t.Error("unlisted format must not auto approve")
	}
	tenant.HumanReviewRequired = true
	if tenant.AutoApproves(ref) {
		t.Error("human review tenants never auto approve")
	}
}
