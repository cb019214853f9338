package skills

import (
	"context"
	"encoding/json"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// ListAuthorizedProperties reports the publisher properties this agent is
// authorized to sell, aggregated across the tenant's inventory profiles.
// Discovery skill, works without a principal.
type ListAuthorizedProperties struct {
	store models.Store
}

func NewListAuthorizedProperties(store models.Store) *ListAuthorizedProperties {
	return &ListAuthorizedProperties{store: store}
}

func (s *ListAuthorizedProperties) Name() string       { return adcp.SkillListAuthorizedProperties }
func (s *ListAuthorizedProperties) RequiresAuth() bool { return false }

func (s *ListAuthorizedProperties) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.ListAuthorizedPropertiesRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("list_authorized_properties: %v", err)
	}
	if len(req.Tags) > 0 {
		tc.Log().Warn("Ignoring deprecated tags filter on list_authorized_properties")
	}

	profiles, err := s.store.ListInventoryProfiles(ctx, tc.TenantID())
	if err != nil {
		return nil, storeError("list inventory profiles", err)
	}

	resp := &adcp.ListAuthorizedPropertiesResponse{
		AdCPVersion:          adcp.Version,
		Properties:           []adcp.Property{},
		PublisherDomains:     tc.Tenant.PublisherDomains,
		PrimaryChannels:      tc.Tenant.PrimaryChannels,
		PrimaryCountries:     tc.Tenant.PrimaryCountries,
		PortfolioDescription: tc.Tenant.PortfolioDescription,
		AdvertisingPolicies:  tc.Tenant.AdvertisingPolicies,
	}
	if !tc.Tenant.UpdatedAt.IsZero() {
		ts := tc.Tenant.UpdatedAt
		resp.LastUpdated = &ts
	}

	seen := make(map[string]bool)
	for _, p := range profiles {
		for _, prop := range p.Properties {
			key := propertyKey(prop)
			if seen[key] {
				continue
			}
			seen[key] = true
			resp.Properties = append(resp.Properties, prop)
		}
	}
	return resp, nil
}

// propertyKey dedupes properties shared by several profiles. Prefer the
// explicit id; otherwise fall back to type plus first identifier.
func propertyKey(p adcp.Property) string {
	if p.PropertyID != "" {
		return "id:" + p.PropertyID
	}
	key := p.PropertyType + ":" + p.Name
	if len(p.Identifiers) > 0 {
		key += ":" + p.Identifiers[0].Type + "=" + p.Identifiers[0].Value
	}
	return key
}
