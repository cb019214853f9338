package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

func mockTenant() *models.Tenant {
	return &models.Tenant{TenantID: "t1", AdServer: models.AdServerMock, IsActive: true}
}

func testBuy(start, end time.Time) *models.MediaBuy {
	return &models.MediaBuy{
		TenantID:    "t1",
		MediaBuyID:  "mb_1",
		PrincipalID: "p1",
		BuyerRef:    "br-1",
		Status:      adcp.StatusActive,
		StartTime:   start,
		EndTime:     end,
		Packages: []models.Package{
			{PackageID: "pkg_1", BuyerRef: "pkg-a", ProductID: "prod_1",
				Budget: &adcp.Budget{Total: 1000, Currency: "USD"}},
			{PackageID: "pkg_2", BuyerRef: "pkg-b", ProductID: "prod_2",
				Budget: &adcp.Budget{Total: 500, Currency: "USD"}},
		},
	}
}

func TestRegistryForTenant(t *testing.T) {
	reg := NewRegistry(analytics.NewMockAnalytics(), observability.NewNoOpRegistry())

	tenant := mockTenant()
	a, err := reg.ForTenant(tenant)
	if err != nil {
		t.Fatalf("ForTenant(mock): %v", err)
	}
	b, err := reg.ForTenant(tenant)
	if err != nil {
		t.Fatalf("ForTenant(mock) second call: %v", err)
	}
	if a != b {
		t.Error("mock adapter not cached per tenant")
	}

	_, err = reg.ForTenant(&models.Tenant{TenantID: "t2", AdServer: models.AdServerGAM})
	var nc *NotConfiguredError
	if !errors.As(err, &nc) {
		t.Fatalf("expected NotConfiguredError for GAM, got %v", err)
	}
	if nc.AdServer != models.AdServerGAM {
		t.Errorf("NotConfiguredError.AdServer = %q", nc.AdServer)
	}

	if _, err := reg.ForTenant(&models.Tenant{TenantID: "t3", AdServer: "doubleclick"}); err == nil {
		t.Error("expected error for unknown ad server")
	}
}

func TestCreateMediaBuyStatusByFlight(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	// Flight already started.
	buy := testBuy(now.Add(-time.Hour), now.Add(24*time.Hour))
	res, err := m.CreateMediaBuy(context.Background(), &CreateRequest{MediaBuy: buy})
	if err != nil {
		t.Fatalf("CreateMediaBuy: %v", err)
	}
	if res.Status != adcp.StatusActive {
		t.Errorf("status = %q, want active", res.Status)
	}
	if len(res.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(res.LineItems))
	}
	if res.OrderID == "" {
		t.Error("empty order id")
	}

	// Future flight.
	future := testBuy(now.Add(time.Hour), now.Add(48*time.Hour))
	future.MediaBuyID = "mb_2"
	res, err = m.CreateMediaBuy(context.Background(), &CreateRequest{MediaBuy: future})
	if err != nil {
		t.Fatalf("CreateMediaBuy future: %v", err)
	}
	if res.Status != adcp.StatusPendingActivation {
		t.Errorf("status = %q, want pending_activation", res.Status)
	}

	order, ok := m.Order("mb_1")
	if !ok {
		t.Fatal("order mb_1 not recorded")
	}
	if order.LineItems[0].PackageID != "pkg_1" {
		t.Errorf("line item package = %q", order.LineItems[0].PackageID)
	}
}

func TestCreateMediaBuyRejectsEmptyOrder(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	buy := testBuy(time.Now(), time.Now().Add(time.Hour))
	buy.Packages = nil
	if _, err := m.CreateMediaBuy(context.Background(), &CreateRequest{MediaBuy: buy}); err == nil {
		t.Fatal("expected error for buy without packages")
	}
}

func TestCreateMediaBuyBindsAdvertiser(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	principal := &models.Principal{
		TenantID:    "t1",
		PrincipalID: "p1",
		PlatformMappings: map[string]json.RawMessage{
			"mock": json.RawMessage(`{"advertiser_id":"adv-9"}`),
		},
	}
	buy := testBuy(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if _, err := m.CreateMediaBuy(context.Background(), &CreateRequest{Principal: principal, MediaBuy: buy}); err != nil {
		t.Fatalf("CreateMediaBuy: %v", err)
	}
	order, ok := m.Order(buy.MediaBuyID)
	if !ok || order.AdvertiserID != "adv-9" {
		t.Errorf("order advertiser = %q, want adv-9", order.AdvertiserID)
	}

	// A mapping that does not decode is a provisioning error, not a silent
	// fallback.
	garbled := &models.Principal{
		TenantID:         "t1",
		PrincipalID:      "p2",
		PlatformMappings: map[string]json.RawMessage{"mock": json.RawMessage(`[1,2]`)},
	}
	other := testBuy(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	other.MediaBuyID = "mb_bad"
	if _, err := m.CreateMediaBuy(context.Background(), &CreateRequest{Principal: garbled, MediaBuy: other}); err == nil {
		t.Fatal("expected error for malformed platform mapping")
	}
}

func TestGetDeliverySimulatesProRata(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * 24 * time.Hour)

	buy := testBuy(start, end)
	halfway := start.Add(5 * 24 * time.Hour)
	res, err := m.GetDelivery(context.Background(), &DeliveryRequest{MediaBuy: buy, Start: start, End: halfway})
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}

	// 1500 total budget at 50% progress is 750 spend, 75000 impressions at
	// the simulated CPM.
	if res.Totals.Spend != 750 {
		t.Errorf("spend = %v, want 750", res.Totals.Spend)
	}
	if res.Totals.Impressions != 75000 {
		t.Errorf("impressions = %d, want 75000", res.Totals.Impressions)
	}
	if len(res.ByPackage) != 2 {
		t.Fatalf("packages = %d, want 2", len(res.ByPackage))
	}
	if res.ByPackage[0].Totals.Spend != 500 {
		t.Errorf("pkg_1 spend = %v, want 500", res.ByPackage[0].Totals.Spend)
	}
}

func TestGetDeliverySkipsPausedPackages(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	buy := testBuy(start, start.Add(24*time.Hour))
	buy.Packages[1].Paused = true
	res, err := m.GetDelivery(context.Background(), &DeliveryRequest{MediaBuy: buy, Start: start, End: start.Add(12 * time.Hour)})
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if res.ByPackage[1].Totals.Impressions != 0 {
		t.Errorf("paused package delivered %d impressions", res.ByPackage[1].Totals.Impressions)
	}
	if res.ByPackage[0].Totals.Impressions == 0 {
		t.Error("running package delivered nothing")
	}
}

func TestGetDeliveryPrefersRealEvents(t *testing.T) {
	svc := analytics.NewMockAnalytics()
	m := NewMock(mockTenant(), svc, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	err := svc.RecordDelivery(context.Background(), analytics.DeliveryEvent{
		Timestamp:   start.Add(time.Hour),
		TenantID:    "t1",
		MediaBuyID:  "mb_1",
		PackageID:   "pkg_1",
		EventType:   analytics.EventImpression,
		Impressions: 4200,
		Spend:       42,
	})
	if err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	buy := testBuy(start, end)
	res, err := m.GetDelivery(context.Background(), &DeliveryRequest{MediaBuy: buy, Start: start, End: end})
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if res.Totals.Impressions != 4200 {
		t.Errorf("impressions = %d, want 4200 from analytics", res.Totals.Impressions)
	}
	if len(res.ByPackage) != 1 || res.ByPackage[0].PackageID != "pkg_1" {
		t.Errorf("unexpected package breakdown: %+v", res.ByPackage)
	}
}

func TestSyncCreativesRejectsAssetless(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	results, err := m.SyncCreatives(context.Background(), &SyncRequest{
		Creatives: []*models.Creative{
			{CreativeID: "cr_1", Status: adcp.CreativeStatusApproved, URL: "https://cdn.example.com/a.jpg"},
			{CreativeID: "cr_2", Status: adcp.CreativeStatusApproved},
		},
	})
	if err != nil {
		t.Fatalf("SyncCreatives: %v", err)
	}
	if results[0].Status != adcp.CreativeStatusApproved {
		t.Errorf("cr_1 status = %q", results[0].Status)
	}
	if results[1].Status != adcp.CreativeStatusRejected || len(results[1].Errors) == 0 {
		t.Errorf("cr_2 not rejected: %+v", results[1])
	}
}

func TestManualApprovalFlag(t *testing.T) {
	tenant := mockTenant()
	tenant.AdapterConfig = map[string]any{"manual_approval_required": true}
	m := NewMock(tenant, nil, nil)
	if !m.ManualApprovalRequired() {
		t.Error("manual approval flag not honored")
	}

	tenant.AdapterConfig = nil
	m.Reconfigure(tenant)
	if m.ManualApprovalRequired() {
		t.Error("manual approval flag not cleared on reconfigure")
	}
}

func TestUpdatePerformanceIndexStored(t *testing.T) {
	m := NewMock(mockTenant(), nil, nil)
	buy := testBuy(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if _, err := m.CreateMediaBuy(context.Background(), &CreateRequest{MediaBuy: buy}); err != nil {
		t.Fatalf("CreateMediaBuy: %v", err)
	}

	ok, err := m.UpdatePerformanceIndex(context.Background(), "mb_1", []adcp.PackagePerformance{
		{PackageID: "pkg_1", PerformanceIndex: 1.3},
	})
	if err != nil || !ok {
		t.Fatalf("UpdatePerformanceIndex: ok=%v err=%v", ok, err)
	}
	order, _ := m.Order("mb_1")
	if order.Perf["pkg_1"] != 1.3 {
		t.Errorf("stored index = %v", order.Perf["pkg_1"])
	}
}
