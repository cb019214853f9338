package models

import (
	"encoding/json"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Creative is a stored asset in a principal's library. Creatives exist
// independently of media buys; assignments bind them to packages.
type Creative struct {
	TenantID    string         `json:"tenant_id"`
	CreativeID  string         `json:"creative_id"`
	PrincipalID string         `json:"principal_id"`
	Name        string         `json:"name"`
	FormatID    adcp.FormatRef `json:"format_id"`
	Status      string         `json:"status"`
	URL         string         `json:"url,omitempty"`
	Snippet     string         `json:"snippet,omitempty"`
	SnippetType string         `json:"snippet_type,omitempty"`
	ClickURL    string         `json:"click_url,omitempty"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
	Duration    float64        `json:"duration,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	// Assets carries multi-asset format payloads untouched.
	Assets    json.RawMessage `json:"assets,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToRecord builds the buyer-facing view with its package assignments.
func (c *Creative) ToRecord(assignedPackages []string) adcp.CreativeRecord {
	return adcp.CreativeRecord{
		CreativeID:       c.CreativeID,
		Name:             c.Name,
		FormatID:         c.FormatID,
		Status:           c.Status,
		URL:              c.URL,
		Snippet:          c.Snippet,
		SnippetType:      c.SnippetType,
		ClickURL:         c.ClickURL,
		Tags:             c.Tags,
		AssignedPackages: assignedPackages,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// ApplyInput overwrites the mutable fields from a sync payload. Identity,
// ownership and review status are managed elsewhere.
func (c *Creative) ApplyInput(in adcp.CreativeInput, format adcp.FormatRef) {
	c.Name = in.Name
	c.FormatID = format
	c.URL = in.URL
	c.Snippet = in.Snippet
	c.SnippetType = in.SnippetType
	c.ClickURL = in.ClickURL
	c.Width = in.Width
	c.Height = in.Height
	c.Duration = in.Duration
	c.Tags = in.Tags
	c.Assets = in.Assets
}

// CreativeAssignment binds a creative to one package of a media buy. Join
// rows rather than arrays on either side, so reassignment is a row
// operation and both directions are queryable.
type CreativeAssignment struct {
	TenantID     string    `json:"tenant_id"`
	AssignmentID string    `json:"assignment_id"`
	CreativeID   string    `json:"creative_id"`
	MediaBuyID   string    `json:"media_buy_id"`
	PackageID    string    `json:"package_id"`
	CreatedAt    time.Time `json:"created_at"`
}
