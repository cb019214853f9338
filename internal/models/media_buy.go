package models

import (
	"encoding/json"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Package is one line of a media buy: a single product bought under one
// pricing option. Packages live as a JSONB document on the buy row; they
// are addressed by server-assigned PackageID or by the buyer's own ref.
type Package struct {
	PackageID       string       `json:"package_id"`
	BuyerRef        string       `json:"buyer_ref"`
	ProductID       string       `json:"product_id"`
	PricingOptionID string       `json:"pricing_option_id"`
	Budget          *adcp.Budget `json:"budget,omitempty"`
	// Impressions is the volume goal for impression-denominated options.
	Impressions int64 `json:"impressions,omitempty"`
	// TargetingOverlay narrows the product's built-in targeting. Passed
	// through to the adapter untouched.
	TargetingOverlay json.RawMessage `json:"targeting_overlay,omitempty"`
	Paused           bool            `json:"paused,omitempty"`
	// PerformanceIndex is the buyer-reported index from
	// update_performance_index. 1.0 is baseline; 0 means never reported.
	PerformanceIndex float64 `json:"performance_index,omitempty"`
}

// MediaBuy is an order against a tenant's inventory, owned by a principal.
// Status follows the adcp status constants. The raw creation request is
// retained for audit.
type MediaBuy struct {
	TenantID    string `json:"tenant_id"`
	MediaBuyID  string `json:"media_buy_id"`
	PrincipalID string `json:"principal_id"`
	// BuyerRef is the buyer's idempotency handle. Unique per principal;
	// creating a second buy with the same ref is rejected.
	BuyerRef         string       `json:"buyer_ref"`
	Status           string       `json:"status"`
	PromotedOffering string       `json:"promoted_offering,omitempty"`
	PONumber         string       `json:"po_number,omitempty"`
	Currency         string       `json:"currency,omitempty"`
	Budget           *adcp.Budget `json:"budget,omitempty"`
	StartTime        time.Time    `json:"start_time"`
	EndTime          time.Time    `json:"end_time"`
	Packages         []Package    `json:"packages"`
	// AdapterOrderID is the id of the provisioned order in the backing ad
	// server. Empty while the buy awaits approval.
	AdapterOrderID string          `json:"adapter_order_id,omitempty"`
	RawRequest     json.RawMessage `json:"raw_request,omitempty"`
	// ReportingWebhook subscribes the buy to scheduled delivery reports.
	ReportingWebhook *adcp.ReportingWebhook `json:"reporting_webhook,omitempty"`
	// NextReportAt is the precomputed next fire time for the delivery
	// report scheduler. Nil when no webhook is registered.
	NextReportAt *time.Time `json:"next_report_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FindPackage locates a package by server id or buyer ref.
func (m *MediaBuy) FindPackage(ref string) *Package {
	for i := range m.Packages {
		if m.Packages[i].PackageID == ref || m.Packages[i].BuyerRef == ref {
			return &m.Packages[i]
		}
	}
	return nil
}

// FlightProgress returns the elapsed fraction of the flight window at now,
// clamped to [0, 1]. Used by the mock adapter to simulate delivery.
func (m *MediaBuy) FlightProgress(now time.Time) float64 {
	if !now.After(m.StartTime) {
		return 0
	}
	total := m.EndTime.Sub(m.StartTime)
	if total <= 0 {
		return 1
	}
	p := float64(now.Sub(m.StartTime)) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}

// TotalBudget sums package budgets, falling back to the order-level budget.
func (m *MediaBuy) TotalBudget() float64 {
	var sum float64
	for _, p := range m.Packages {
		if p.Budget != nil {
			sum += p.Budget.Total
		}
	}
	if sum == 0 && m.Budget != nil {
		return m.Budget.Total
	}
	return sum
}
