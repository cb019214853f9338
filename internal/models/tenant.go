package models

import (
	"strings"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Ad server backends a tenant can bind to. The adapter registry resolves
// these names; only the mock backend ships in-process.
const (
	AdServerMock  = "mock"
	AdServerGAM   = "google_ad_manager"
	AdServerKevel = "kevel"
)

// Brand manifest policies for get_products.
const (
	BrandPolicyPublic       = "public"
	BrandPolicyRequireBrand = "require_brand"
	BrandPolicyRequireAuth  = "require_auth"
)

// Tenant is one publisher on the platform. Every piece of sales state hangs
// off a tenant, and every store query is filtered by TenantID.
type Tenant struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	// Subdomain routes requests when the agent is addressed as
	// <subdomain>.<base-host>. Unique across tenants.
	Subdomain string `json:"subdomain"`
	// VirtualHost routes requests arriving behind a reverse proxy that sets
	// Apx-Incoming-Host. Optional.
	VirtualHost string `json:"virtual_host,omitempty"`
	// AdServer selects the backing adapter: AdServerMock, AdServerGAM or
	// AdServerKevel.
	AdServer string `json:"ad_server"`
	// HumanReviewRequired gates media buy creation behind manual approval.
	// When set, create_media_buy produces a submitted task instead of
	// provisioning in the ad server.
	HumanReviewRequired bool `json:"human_review_required"`
	// BrandManifestPolicy controls who may call get_products: public,
	// require_brand (a brand manifest must accompany the call) or
	// require_auth (anonymous discovery is refused).
	BrandManifestPolicy string `json:"brand_manifest_policy,omitempty"`
	// AutoApproveFormatIDs lists creative formats that skip review during
	// sync_creatives. Everything else lands in pending_review.
	AutoApproveFormatIDs []adcp.FormatRef `json:"auto_approve_format_ids,omitempty"`
	// AuthorizedEmails and AuthorizedDomains whitelist operator access in
	// the management API.
	AuthorizedEmails  []string `json:"authorized_emails,omitempty"`
	AuthorizedDomains []string `json:"authorized_domains,omitempty"`
	// Portfolio metadata surfaced by list_authorized_properties.
	PublisherDomains     []string `json:"publisher_domains,omitempty"`
	PrimaryChannels      []string `json:"primary_channels,omitempty"`
	PrimaryCountries     []string `json:"primary_countries,omitempty"`
	PortfolioDescription string   `json:"portfolio_description,omitempty"`
	AdvertisingPolicies  string   `json:"advertising_policies,omitempty"`
	// AdapterConfig carries backend-specific settings such as network codes
	// or API endpoints. Opaque to the core.
	AdapterConfig map[string]any `json:"adapter_config,omitempty"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AutoApproves reports whether creatives in the given format skip review.
func (t *Tenant) AutoApproves(ref adcp.FormatRef) bool {
	if t.HumanReviewRequired {
		return false
	}
	for _, f := range t.AutoApproveFormatIDs {
		if f.ID == ref.ID && (f.AgentURL == "" || strings.EqualFold(f.AgentURL, ref.AgentURL)) {
			return true
		}
	}
	return false
}
