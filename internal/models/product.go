package models

import (
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Product is sellable inventory as the publisher defines it. The wire view
// returned to buyers is adcp.Product; AllowedPrincipalIDs, the inventory
// profile link and ImplementationConfig exist only here and therefore can
// never appear in a response.
type Product struct {
	TenantID    string `json:"tenant_id"`
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// FormatIDs lists the creative formats the product accepts, always in
	// normalized {agent_url, id} form.
	FormatIDs    []adcp.FormatRef `json:"format_ids"`
	DeliveryType string           `json:"delivery_type"`
	// PricingOptions is the menu of ways this product can be bought. Buys
	// reference options by pricing_option_id.
	PricingOptions []adcp.PricingOption `json:"pricing_options"`
	// MinExposures is the smallest impression volume the publisher will
	// accept for this product. Used by the min_exposures discovery filter.
	MinExposures int64 `json:"min_exposures,omitempty"`
	IsCustom     bool  `json:"is_custom,omitempty"`
	// ExpiresAt retires custom products automatically. Nil means evergreen.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// InventoryProfileID links to the profile resolved at buy time into
	// concrete ad server placements. Optional.
	InventoryProfileID string `json:"inventory_profile_id,omitempty"`
	// AllowedPrincipalIDs restricts visibility. Empty means public to every
	// principal in the tenant.
	AllowedPrincipalIDs []string `json:"allowed_principal_ids,omitempty"`
	// ImplementationConfig carries ad server specifics (placement ids, key
	// values) applied when a buy is provisioned. Opaque to the core.
	ImplementationConfig map[string]any `json:"implementation_config,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// VisibleTo reports whether the principal may see the product. An empty
// allow-list means public. Anonymous discovery (empty principalID) only
// sees public products.
func (p *Product) VisibleTo(principalID string) bool {
	if len(p.AllowedPrincipalIDs) == 0 {
		return true
	}
	if principalID == "" {
		return false
	}
	for _, id := range p.AllowedPrincipalIDs {
		if id == principalID {
			return true
		}
	}
	return false
}

// Expired reports whether a custom product has passed its expiry.
func (p *Product) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// PricingOption returns the option with the given id, or nil.
func (p *Product) PricingOption(id string) *adcp.PricingOption {
	for i := range p.PricingOptions {
		if p.PricingOptions[i].PricingOptionID == id {
			return &p.PricingOptions[i]
		}
	}
	return nil
}

// HasFixedPricing reports whether any pricing option is fixed rate.
func (p *Product) HasFixedPricing() bool {
	for _, opt := range p.PricingOptions {
		if opt.IsFixed {
			return true
		}
	}
	return false
}

// ToAdCP builds the buyer-facing view.
func (p *Product) ToAdCP() adcp.Product {
	return adcp.Product{
		ProductID:      p.ProductID,
		Name:           p.Name,
		Description:    p.Description,
		FormatIDs:      p.FormatIDs,
		DeliveryType:   p.DeliveryType,
		PricingOptions: p.PricingOptions,
		MinExposures:   p.MinExposures,
		IsCustom:       p.IsCustom,
		ExpiresAt:      p.ExpiresAt,
	}
}

// InventoryProfile groups the ad server placements a product maps onto.
// Products reference profiles so the mapping can change without editing the
// product; the resolution happens when a buy is created, not before.
type InventoryProfile struct {
	TenantID  string `json:"tenant_id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
	// AdUnits and Placements are backend identifiers in the tenant's ad
	// server.
	AdUnits    []string `json:"ad_units,omitempty"`
	Placements []string `json:"placements,omitempty"`
	// Properties ties the profile to the publisher properties it spans.
	Properties []adcp.Property `json:"properties,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
