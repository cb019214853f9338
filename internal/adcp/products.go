package adcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Pricing models accepted on pricing options.
const (
	PricingModelCPM      = "cpm"
	PricingModelVCPM     = "vcpm"
	PricingModelCPC      = "cpc"
	PricingModelCPCV     = "cpcv"
	PricingModelCPP      = "cpp"
	PricingModelFlatRate = "flat_rate"
)

// Delivery types.
const (
	DeliveryTypeGuaranteed    = "guaranteed"
	DeliveryTypeNonGuaranteed = "non_guaranteed"
)

// PricingOption is one way a product can be bought. Fixed-rate options carry
// Rate; auction options carry guidance instead.
type PricingOption struct {
	PricingOptionID    string         `json:"pricing_option_id"`
	PricingModel       string         `json:"pricing_model"`
	Currency           string         `json:"currency"`
	Rate               float64        `json:"rate,omitempty"`
	IsFixed            bool           `json:"is_fixed"`
	PriceGuidance      *PriceGuidance `json:"price_guidance,omitempty"`
	MinSpendPerPackage float64        `json:"min_spend_per_package,omitempty"`
}

// PriceGuidance gives auction buyers a distribution to bid against.
type PriceGuidance struct {
	Floor float64 `json:"floor,omitempty"`
	P25   float64 `json:"p25,omitempty"`
	P50   float64 `json:"p50,omitempty"`
	P75   float64 `json:"p75,omitempty"`
	P90   float64 `json:"p90,omitempty"`
}

// Product is the buyer-facing view of sellable inventory. Internal fields
// such as the principal allow-list and the ad server implementation config
// live on the persisted model and are never part of this struct, so they
// cannot leak through serialization.
type Product struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	FormatIDs      []FormatRef     `json:"format_ids"`
	DeliveryType   string          `json:"delivery_type"`
	PricingOptions []PricingOption `json:"pricing_options"`
	MinExposures   int64           `json:"min_exposures,omitempty"`
	IsCustom       bool            `json:"is_custom,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	BriefRelevance string          `json:"brief_relevance,omitempty"`
}

// ProductFilters narrows get_products structurally, before any brief
// ranking happens.
type ProductFilters struct {
	DeliveryType        string       `json:"delivery_type,omitempty"`
	IsFixedPrice        *bool        `json:"is_fixed_price,omitempty"`
	FormatTypes         StringOrList `json:"format_types,omitempty"`
	FormatIDs           []FormatRef  `json:"format_ids,omitempty"`
	StandardFormatsOnly bool         `json:"standard_formats_only,omitempty"`
}

// GetProductsRequest discovers inventory. At least one of brief or
// brand_manifest must be present; brand_manifest arrives as a string URL or
// an object, and the legacy promoted_offering field still satisfies the
// brand requirement.
type GetProductsRequest struct {
	Brief            string          `json:"brief,omitempty"`
	PromotedOffering string          `json:"promoted_offering,omitempty"`
	BrandManifest    json.RawMessage `json:"brand_manifest,omitempty"`
	Filters          *ProductFilters `json:"filters,omitempty"`
	MinExposures     int64           `json:"min_exposures,omitempty"`
}

type GetProductsResponse struct {
	AdCPVersion string    `json:"adcp_version"`
	Products    []Product `json:"products"`
	Errors      []Error   `json:"errors,omitempty"`
}

func (r *GetProductsResponse) Summary() string {
	if len(r.Products) == 0 {
		return "No products matched the request"
	}
	return fmt.Sprintf("Found %d products", len(r.Products))
}
