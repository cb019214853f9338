package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Principal is an authenticated buyer within a tenant. The bearer token is
// the sole credential; platform mappings tie the principal to advertiser
// records in each backing ad server.
type Principal struct {
	TenantID    string `json:"tenant_id"`
	PrincipalID string `json:"principal_id"`
	Name        string `json:"name"`
	// AccessToken is the opaque bearer token. Unique per tenant; token
	// lookup is how requests become principals.
	AccessToken string `json:"access_token,omitempty"`
	// PlatformMappings maps ad server names to backend-specific advertiser
	// identity, for example {"mock": {"advertiser_id": "adv-1"}}. Never
	// null; an empty object means no backend identity yet.
	PlatformMappings map[string]json.RawMessage `json:"platform_mappings"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// AdapterMapping decodes the mapping for one ad server. Returns an empty
// map when the principal has no identity there.
func (p *Principal) AdapterMapping(adServer string) (map[string]any, error) {
	raw, ok := p.PlatformMappings[adServer]
	if !ok || len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("platform_mappings[%s]: %w", adServer, err)
	}
	return m, nil
}

// ValidatePlatformMappings enforces the non-null object invariant on the
// raw column value before it is written.
func ValidatePlatformMappings(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("platform_mappings must not be null")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("platform_mappings must be a JSON object: %w", err)
	}
	if m == nil {
		return fmt.Errorf("platform_mappings must not be null")
	}
	return nil
}
