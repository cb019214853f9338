package skills

import (
	"context"
	"encoding/json"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// ListCreativeFormats returns the format catalog. Discovery skill, works
// without a principal.
type ListCreativeFormats struct {
	store models.Store
}

func NewListCreativeFormats(store models.Store) *ListCreativeFormats {
	return &ListCreativeFormats{store: store}
}

func (s *ListCreativeFormats) Name() string       { return adcp.SkillListCreativeFormats }
func (s *ListCreativeFormats) RequiresAuth() bool { return false }

func (s *ListCreativeFormats) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.ListCreativeFormatsRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("list_creative_formats: %v", err)
	}

	catalog, err := s.store.ListCreativeFormats(ctx)
	if err != nil {
		return nil, storeError("list creative formats", err)
	}

	wanted := make(map[string]bool, len(req.FormatIDs))
	for _, id := range req.FormatIDs {
		wanted[id] = true
	}

	resp := &adcp.ListCreativeFormatsResponse{AdCPVersion: adcp.Version}
	for _, f := range catalog {
		if req.Type != "" && f.Type != req.Type {
			continue
		}
		if req.StandardOnly != nil && *req.StandardOnly && !f.IsStandard {
			continue
		}
		if len(wanted) > 0 && !wanted[f.FormatID] {
			continue
		}
		resp.Formats = append(resp.Formats, f)
	}
	return resp, nil
}
