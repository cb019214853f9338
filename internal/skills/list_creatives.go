package skills

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

const defaultPageLimit = 50

// ListCreatives queries the caller's creative library with filtering,
// sorting and pagination. Results never cross principals.
type ListCreatives struct {
	store models.Store
}

func NewListCreatives(store models.Store) *ListCreatives {
	return &ListCreatives{store: store}
}

func (s *ListCreatives) Name() string       { return adcp.SkillListCreatives }
func (s *ListCreatives) RequiresAuth() bool { return true }

func (s *ListCreatives) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.ListCreativesRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("list_creatives: %v", err)
	}

	creatives, err := s.store.ListCreatives(ctx, tc.TenantID(), tc.PrincipalID())
	if err != nil {
		return nil, storeError("list creatives", err)
	}

	if req.Filters != nil {
		creatives, err = s.filter(ctx, tc, creatives, req.Filters)
		if err != nil {
			return nil, storeError("filter creatives", err)
		}
	}
	if terr := sortCreatives(creatives, req.Sort); terr != nil {
		return nil, terr
	}

	limit := defaultPageLimit
	offset := 0
	if req.Pagination != nil {
		if req.Pagination.Limit > 0 {
			limit = req.Pagination.Limit
		}
		if req.Pagination.Offset > 0 {
			offset = req.Pagination.Offset
		}
	}
	total := len(creatives)
	page := creatives[min(offset, total):min(offset+limit, total)]

	resp := &adcp.ListCreativesResponse{
		AdCPVersion: adcp.Version,
		QuerySummary: adcp.QuerySummary{
			TotalMatching: total,
			Returned:      len(page),
			Limit:         limit,
			Offset:        offset,
			HasMore:       offset+len(page) < total,
		},
		Creatives: make([]adcp.CreativeRecord, 0, len(page)),
	}
	for i := range page {
		assignments, err := s.store.ListAssignmentsByCreative(ctx, tc.TenantID(), page[i].CreativeID)
		if err != nil {
			return nil, storeError("list assignments", err)
		}
		packages := make([]string, 0, len(assignments))
		for _, a := range assignments {
			packages = append(packages, a.PackageID)
		}
		resp.Creatives = append(resp.Creatives, page[i].ToRecord(packages))
	}
	return resp, nil
}

func (s *ListCreatives) filter(ctx context.Context, tc *ToolContext, creatives []models.Creative, f *adcp.CreativeFilters) ([]models.Creative, error) {
	// The media_buy_id filter needs the set of creatives assigned to that
	// buy; a buy owned by someone else yields an empty set, not an error.
	var assignedTo map[string]bool
	if f.MediaBuyID != "" {
		assignedTo = map[string]bool{}
		buy, err := s.store.GetMediaBuy(ctx, tc.TenantID(), f.MediaBuyID)
		if err == nil && buy.PrincipalID == tc.PrincipalID() {
			assignments, err := s.store.ListAssignmentsByMediaBuy(ctx, tc.TenantID(), f.MediaBuyID)
			if err != nil {
				return nil, err
			}
			for _, a := range assignments {
				assignedTo[a.CreativeID] = true
			}
		}
	}

	kept := creatives[:0]
	for i := range creatives {
		c := &creatives[i]
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.FormatID != nil && !c.FormatID.Matches(*f.FormatID) {
			continue
		}
		if !hasAllTags(c.Tags, f.Tags) {
			continue
		}
		if f.CreatedAfter != nil && !c.CreatedAt.After(*f.CreatedAfter) {
			continue
		}
		if f.CreatedBefore != nil && !c.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		if assignedTo != nil && !assignedTo[c.CreativeID] {
			continue
		}
		kept = append(kept, *c)
	}
	return kept, nil
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// sortCreatives orders in place. The default is newest first.
func sortCreatives(creatives []models.Creative, spec *adcp.SortSpec) *adcp.TransportError {
	field := "created_at"
	desc := true
	if spec != nil {
		if spec.Field != "" {
			field = spec.Field
		}
		switch spec.Direction {
		case "", "desc":
			desc = true
		case "asc":
			desc = false
		default:
			return adcp.InvalidParamsf("sort direction must be asc or desc, got %q", spec.Direction)
		}
	}

	var less func(a, b *models.Creative) bool
	switch field {
	case "created_at":
		less = func(a, b *models.Creative) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at":
		less = func(a, b *models.Creative) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "name":
		less = func(a, b *models.Creative) bool { return a.Name < b.Name }
	case "status":
		less = func(a, b *models.Creative) bool { return a.Status < b.Status }
	default:
		return adcp.InvalidParamsf("unsupported sort field %q", field)
	}

	sort.SliceStable(creatives, func(i, j int) bool {
		if desc {
			return less(&creatives[j], &creatives[i])
		}
		return less(&creatives[i], &creatives[j])
	})
	return nil
}
