package adcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Creative statuses.
const (
	CreativeStatusApproved      = "approved"
	CreativeStatusPendingReview = "pending_review"
	CreativeStatusRejected      = "rejected"
	CreativeStatusArchived      = "archived"
)

// Sync actions reported per creative.
const (
	SyncActionCreated   = "created"
	SyncActionUpdated   = "updated"
	SyncActionDeleted   = "deleted"
	SyncActionUnchanged = "unchanged"
	SyncActionFailed    = "failed"
)

// Validation modes for sync_creatives.
const (
	ValidationStrict  = "strict"
	ValidationLenient = "lenient"
)

// CreativeInput is the buyer-supplied form of a creative. format_id accepts
// a bare string or the {agent_url, id} object; the legacy format alias is
// folded in during decode.
type CreativeInput struct {
	CreativeID   string          `json:"creative_id"`
	Name         string          `json:"name"`
	FormatID     FormatRef       `json:"format_id"`
	LegacyFormat json.RawMessage `json:"format,omitempty"`
	URL          string          `json:"url,omitempty"`
	Snippet      string          `json:"snippet,omitempty"`
	SnippetType  string          `json:"snippet_type,omitempty"`
	ClickURL     string          `json:"click_url,omitempty"`
	Width        int             `json:"width,omitempty"`
	Height       int             `json:"height,omitempty"`
	Duration     float64         `json:"duration,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Assets       json.RawMessage `json:"assets,omitempty"`
}

// Format returns the normalized format reference, honoring the legacy
// alias when format_id was absent.
func (c *CreativeInput) Format() (FormatRef, error) {
	if !c.FormatID.IsZero() {
		return c.FormatID, nil
	}
	if len(c.LegacyFormat) == 0 {
		return FormatRef{}, fmt.Errorf("format_id is required")
	}
	var ref FormatRef
	if err := json.Unmarshal(c.LegacyFormat, &ref); err != nil {
		return FormatRef{}, err
	}
	if ref.IsZero() {
		return FormatRef{}, fmt.Errorf("format_id is required")
	}
	return ref, nil
}

// SyncCreativesRequest upserts the caller's creative library in full.
// assignments maps creative_id to the package buyer_refs it should run in.
// creative_ids narrows which stored creatives the sync considers; with
// delete_missing set, stored creatives absent from the payload are archived.
type SyncCreativesRequest struct {
	Creatives      []CreativeInput     `json:"creatives"`
	CreativeIDs    []string            `json:"creative_ids,omitempty"`
	Assignments    map[string][]string `json:"assignments,omitempty"`
	DeleteMissing  bool                `json:"delete_missing,omitempty"`
	DryRun         bool                `json:"dry_run,omitempty"`
	ValidationMode string              `json:"validation_mode,omitempty"`
}

// SyncCreativeResult reports the outcome for one creative.
type SyncCreativeResult struct {
	CreativeID string   `json:"creative_id"`
	Action     string   `json:"action"`
	Status     string   `json:"status,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// SyncSummary counts outcomes across the whole sync.
type SyncSummary struct {
	TotalProcessed int `json:"total_processed"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Deleted        int `json:"deleted"`
	Unchanged      int `json:"unchanged"`
	Failed         int `json:"failed"`
}

// AssignmentSummary counts package assignment outcomes.
type AssignmentSummary struct {
	Assigned int `json:"assigned"`
	Failed   int `json:"failed"`
}

type SyncCreativesResponse struct {
	AdCPVersion string               `json:"adcp_version"`
	DryRun      bool                 `json:"dry_run,omitempty"`
	SyncSummary SyncSummary          `json:"summary"`
	Results     []SyncCreativeResult `json:"results"`
	Assignments *AssignmentSummary   `json:"assignments_summary,omitempty"`
	Errors      []Error              `json:"errors,omitempty"`
}

func (r *SyncCreativesResponse) Summary() string {
	s := r.SyncSummary
	text := fmt.Sprintf("Synced %d creatives: %d created, %d updated, %d unchanged",
		s.TotalProcessed, s.Created, s.Updated, s.Unchanged)
	if s.Failed > 0 {
		text += fmt.Sprintf(", %d failed", s.Failed)
	}
	if r.DryRun {
		text += " (dry run)"
	}
	return text
}

// Submitted reports whether any synced creative awaits review.
func (r *SyncCreativesResponse) Submitted() bool {
	for _, res := range r.Results {
		if res.Status == CreativeStatusPendingReview {
			return true
		}
	}
	return false
}

// CreativeFilters narrows list_creatives.
type CreativeFilters struct {
	Status        string     `json:"status,omitempty"`
	FormatID      *FormatRef `json:"format_id,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	Search        string     `json:"search,omitempty"`
	MediaBuyID    string     `json:"media_buy_id,omitempty"`
}

// SortSpec orders list results.
type SortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// PageSpec bounds list results. Limit defaults server-side when zero.
type PageSpec struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type ListCreativesRequest struct {
	Filters    *CreativeFilters `json:"filters,omitempty"`
	Sort       *SortSpec        `json:"sort,omitempty"`
	Pagination *PageSpec        `json:"pagination,omitempty"`
}

// CreativeRecord is the buyer-facing view of a stored creative.
type CreativeRecord struct {
	CreativeID       string    `json:"creative_id"`
	Name             string    `json:"name"`
	FormatID         FormatRef `json:"format_id"`
	Status           string    `json:"status"`
	URL              string    `json:"url,omitempty"`
	Snippet          string    `json:"snippet,omitempty"`
	SnippetType      string    `json:"snippet_type,omitempty"`
	ClickURL         string    `json:"click_url,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	AssignedPackages []string  `json:"assigned_packages,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// QuerySummary describes the page returned by list_creatives.
type QuerySummary struct {
	TotalMatching int  `json:"total_matching"`
	Returned      int  `json:"returned"`
	Limit         int  `json:"limit"`
	Offset        int  `json:"offset"`
	HasMore       bool `json:"has_more"`
}

type ListCreativesResponse struct {
	AdCPVersion  string           `json:"adcp_version"`
	QuerySummary QuerySummary     `json:"query_summary"`
	Creatives    []CreativeRecord `json:"creatives"`
	Errors       []Error          `json:"errors,omitempty"`
}

func (r *ListCreativesResponse) Summary() string {
	return fmt.Sprintf("%d of %d creatives", r.QuerySummary.Returned, r.QuerySummary.TotalMatching)
}
