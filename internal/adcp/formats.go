package adcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultFormatAgentURL is assumed when a format is referenced by bare id.
const DefaultFormatAgentURL = "https://creative.adcontextprotocol.org"

// FormatRef identifies a creative format by the agent that defines it plus
// the format id. Buyers may send a bare string id or the full object; both
// decode into the same normalized form.
type FormatRef struct {
	AgentURL string `json:"agent_url"`
	ID       string `json:"id"`
}

func (f *FormatRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = FormatRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*f = FormatRef{AgentURL: DefaultFormatAgentURL, ID: id}
		return nil
	}
	type alias FormatRef
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("format reference must be a string or {agent_url, id}: %w", err)
	}
	if a.AgentURL == "" {
		a.AgentURL = DefaultFormatAgentURL
	}
	*f = FormatRef(a)
	return nil
}

func (f FormatRef) String() string {
	return f.AgentURL + "#" + f.ID
}

// IsZero reports whether the reference is empty.
func (f FormatRef) IsZero() bool { return f.ID == "" }

// Matches reports whether two references identify the same format. Agent
// URLs compare case-insensitively.
func (f FormatRef) Matches(other FormatRef) bool {
	return f.ID == other.ID && strings.EqualFold(f.AgentURL, other.AgentURL)
}

// Format is a creative format definition returned by
// list_creative_formats.
type Format struct {
	FormatID       string             `json:"format_id"`
	AgentURL       string             `json:"agent_url"`
	Name           string             `json:"name"`
	Type           string             `json:"type"`
	IsStandard     bool               `json:"is_standard"`
	Requirements   map[string]any     `json:"requirements,omitempty"`
	AssetsRequired []AssetRequirement `json:"assets_required,omitempty"`
}

// AssetRequirement describes one asset slot of a multi-asset format.
type AssetRequirement struct {
	AssetType    string         `json:"asset_type"`
	Quantity     int            `json:"quantity,omitempty"`
	Requirements map[string]any `json:"requirements,omitempty"`
}

// Format types.
const (
	FormatTypeDisplay   = "display"
	FormatTypeVideo     = "video"
	FormatTypeAudio     = "audio"
	FormatTypeNative    = "native"
	FormatTypeDOOH      = "dooh"
	FormatTypeRichMedia = "rich_media"
)

// ListCreativeFormatsRequest filters the format catalog. All fields are
// optional; an empty request returns every format the tenant accepts.
type ListCreativeFormatsRequest struct {
	Type         string       `json:"type,omitempty"`
	StandardOnly *bool        `json:"standard_only,omitempty"`
	FormatIDs    StringOrList `json:"format_ids,omitempty"`
}

type ListCreativeFormatsResponse struct {
	AdCPVersion string   `json:"adcp_version"`
	Formats     []Format `json:"formats"`
	Errors      []Error  `json:"errors,omitempty"`
}

func (r *ListCreativeFormatsResponse) Summary() string {
	return fmt.Sprintf("%d creative formats available", len(r.Formats))
}
