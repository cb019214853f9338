package adcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// BrandManifest describes the advertiser behind a request. Buyers may send
// it inline or as a bare URL string; NormalizeBrandManifest folds both forms
// into the struct.
type BrandManifest struct {
	URL    string `json:"url,omitempty"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// NormalizeBrandManifest accepts the raw brand_manifest field. A string is
// treated as the manifest URL with the name derived from its host. Returns
// nil for an absent field.
func NormalizeBrandManifest(raw json.RawMessage) (*BrandManifest, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var u string
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, err
		}
		if u == "" {
			return nil, fmt.Errorf("brand_manifest URL is empty")
		}
		m := &BrandManifest{URL: u}
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			m.Domain = parsed.Host
			m.Name = strings.TrimPrefix(parsed.Host, "www.")
		} else {
			m.Name = u
		}
		return m, nil
	}
	var m BrandManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("brand_manifest must be a URL string or an object: %w", err)
	}
	if m.URL == "" && m.Name == "" {
		return nil, fmt.Errorf("brand_manifest requires url or name")
	}
	if m.Domain == "" && m.URL != "" {
		if parsed, err := url.Parse(m.URL); err == nil {
			m.Domain = parsed.Host
		}
	}
	return &m, nil
}
