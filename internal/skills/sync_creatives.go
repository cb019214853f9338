package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// SyncCreatives performs a full upsert of the caller's creative library and
// optionally binds creatives to packages in the same call. The whole sync is
// planned before anything is written: dry_run returns the plan untouched,
// and strict validation aborts the write phase when any creative fails.
type SyncCreatives struct {
	store    models.Store
	adapters *adapters.Registry
}

func NewSyncCreatives(store models.Store, reg *adapters.Registry) *SyncCreatives {
	return &SyncCreatives{store: store, adapters: reg}
}

func (s *SyncCreatives) Name() string       { return adcp.SkillSyncCreatives }
func (s *SyncCreatives) RequiresAuth() bool { return true }

// plannedChange is one creative mutation the sync would perform.
type plannedChange struct {
	result adcp.SyncCreativeResult
	record *models.Creative
	insert bool
}

// plannedAssignment is one creative-to-package binding the sync would
// perform.
type plannedAssignment struct {
	creativeID string
	mediaBuyID string
	packageID  string
}

func (s *SyncCreatives) Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	var req adcp.SyncCreativesRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, adcp.InvalidParamsf("sync_creatives: %v", err)
	}
	mode := req.ValidationMode
	if mode == "" {
		mode = adcp.ValidationStrict
	}
	if mode != adcp.ValidationStrict && mode != adcp.ValidationLenient {
		return nil, adcp.InvalidParamsf("validation_mode must be %q or %q", adcp.ValidationStrict, adcp.ValidationLenient)
	}
	if len(req.Creatives) == 0 && !req.DeleteMissing && len(req.Assignments) == 0 {
		return nil, adcp.InvalidParamsf("sync_creatives requires creatives, assignments or delete_missing")
	}

	library, err := s.store.ListCreatives(ctx, tc.TenantID(), tc.PrincipalID())
	if err != nil {
		return nil, storeError("list creatives", err)
	}
	byID := make(map[string]*models.Creative, len(library))
	for i := range library {
		byID[library[i].CreativeID] = &library[i]
	}

	changes := s.planUpserts(ctx, tc, &req, byID)
	changes = append(changes, s.planDeletes(&req, library)...)

	resp := &adcp.SyncCreativesResponse{AdCPVersion: adcp.Version, DryRun: req.DryRun}
	for _, ch := range changes {
		resp.Results = append(resp.Results, ch.result)
		switch ch.result.Action {
		case adcp.SyncActionCreated:
			resp.SyncSummary.Created++
		case adcp.SyncActionUpdated:
			resp.SyncSummary.Updated++
		case adcp.SyncActionDeleted:
			resp.SyncSummary.Deleted++
		case adcp.SyncActionUnchanged:
			resp.SyncSummary.Unchanged++
		case adcp.SyncActionFailed:
			resp.SyncSummary.Failed++
		}
	}
	resp.SyncSummary.TotalProcessed = len(changes)

	assignments, asgErrs, terr := s.planAssignments(ctx, tc, &req, changes, byID)
	if terr != nil {
		return nil, terr
	}
	resp.Errors = append(resp.Errors, asgErrs...)
	if req.Assignments != nil {
		resp.Assignments = &adcp.AssignmentSummary{
			Assigned: len(assignments),
			Failed:   len(asgErrs),
		}
	}

	if mode == adcp.ValidationStrict && resp.SyncSummary.Failed > 0 {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeValidation,
			"strict validation: %d creatives failed, no changes applied", resp.SyncSummary.Failed))
		return resp, nil
	}
	if req.DryRun {
		return resp, nil
	}

	if terr := s.apply(ctx, tc, changes, assignments, resp); terr != nil {
		return nil, terr
	}
	tc.Log().Info("Creatives synced",
		zap.Int("processed", resp.SyncSummary.TotalProcessed),
		zap.Int("created", resp.SyncSummary.Created),
		zap.Int("updated", resp.SyncSummary.Updated),
		zap.Int("failed", resp.SyncSummary.Failed),
		zap.Int("assigned", len(assignments)))
	return resp, nil
}

// planUpserts validates each payload creative against the library and
// decides its action without writing anything.
func (s *SyncCreatives) planUpserts(ctx context.Context, tc *ToolContext, req *adcp.SyncCreativesRequest, byID map[string]*models.Creative) []plannedChange {
	changes := make([]plannedChange, 0, len(req.Creatives))
	now := tc.Now()
	seen := make(map[string]bool, len(req.Creatives))
	for i := range req.Creatives {
		in := &req.Creatives[i]
		res := adcp.SyncCreativeResult{CreativeID: in.CreativeID}

		fail := func(msg string) {
			res.Action = adcp.SyncActionFailed
			res.Errors = append(res.Errors, msg)
		}

		format, ferr := in.Format()
		switch {
		case in.CreativeID == "":
			fail("creative_id is required")
		case seen[in.CreativeID]:
			fail("duplicate creative_id in payload")
		case in.Name == "":
			fail("name is required")
		case ferr != nil:
			fail(ferr.Error())
		case in.URL == "" && in.Snippet == "" && len(in.Assets) == 0:
			fail("creative has no renderable asset: provide url, snippet or assets")
		}
		if in.CreativeID != "" {
			seen[in.CreativeID] = true
		}
		if res.Action == adcp.SyncActionFailed {
			changes = append(changes, plannedChange{result: res})
			continue
		}

		// Creative ids are unique per tenant. An id missing from the
		// caller's library but present in the tenant belongs to someone
		// else.
		if _, mine := byID[in.CreativeID]; !mine {
			if other, err := s.store.GetCreative(ctx, tc.TenantID(), in.CreativeID); err == nil && other.PrincipalID != tc.PrincipalID() {
				fail(fmt.Sprintf("creative id %q is already in use", in.CreativeID))
				changes = append(changes, plannedChange{result: res})
				continue
			}
		}

		status := adcp.CreativeStatusPendingReview
		if tc.Tenant.AutoApproves(format) {
			status = adcp.CreativeStatusApproved
		}

		if existing, ok := byID[in.CreativeID]; ok {
			updated := *existing
			updated.ApplyInput(*in, format)
			if sameCreativeContent(&updated, existing) {
				res.Action = adcp.SyncActionUnchanged
				res.Status = existing.Status
				changes = append(changes, plannedChange{result: res, record: existing})
				continue
			}
			// Content changed, so the review decision is made again.
			updated.Status = status
			res.Action = adcp.SyncActionUpdated
			res.Status = status
			changes = append(changes, plannedChange{result: res, record: &updated})
			continue
		}

		record := &models.Creative{
			TenantID:    tc.TenantID(),
			CreativeID:  in.CreativeID,
			PrincipalID: tc.PrincipalID(),
			Status:      status,
			CreatedAt:   now,
		}
		record.ApplyInput(*in, format)
		res.Action = adcp.SyncActionCreated
		res.Status = status
		changes = append(changes, plannedChange{result: res, record: record, insert: true})
	}
	return changes
}

// planDeletes turns delete_missing into archive actions for stored
// creatives absent from the payload, restricted to creative_ids when given.
func (s *SyncCreatives) planDeletes(req *adcp.SyncCreativesRequest, library []models.Creative) []plannedChange {
	if !req.DeleteMissing {
		return nil
	}
	inPayload := make(map[string]bool, len(req.Creatives))
	for _, in := range req.Creatives {
		inPayload[in.CreativeID] = true
	}
	scope := make(map[string]bool, len(req.CreativeIDs))
	for _, id := range req.CreativeIDs {
		scope[id] = true
	}

	var changes []plannedChange
	for i := range library {
		c := &library[i]
		if inPayload[c.CreativeID] || c.Status == adcp.CreativeStatusArchived {
			continue
		}
		if len(scope) > 0 && !scope[c.CreativeID] {
			continue
		}
		archived := *c
		archived.Status = adcp.CreativeStatusArchived
		changes = append(changes, plannedChange{
			result: adcp.SyncCreativeResult{
				CreativeID: c.CreativeID,
				Action:     adcp.SyncActionDeleted,
				Status:     adcp.CreativeStatusArchived,
			},
			record: &archived,
		})
	}
	return changes
}

// planAssignments resolves package buyer_refs to concrete packages across
// the principal's media buys. An ambiguous ref, one reused across buys, is
// rejected rather than guessed.
func (s *SyncCreatives) planAssignments(ctx context.Context, tc *ToolContext, req *adcp.SyncCreativesRequest, changes []plannedChange, byID map[string]*models.Creative) ([]plannedAssignment, []adcp.Error, *adcp.TransportError) {
	if len(req.Assignments) == 0 {
		return nil, nil, nil
	}

	buys, err := s.store.ListMediaBuys(ctx, tc.TenantID())
	if err != nil {
		return nil, nil, storeError("list media buys", err)
	}
	type target struct {
		mediaBuyID string
		packageID  string
		count      int
	}
	refs := make(map[string]*target)
	for i := range buys {
		if buys[i].PrincipalID != tc.PrincipalID() {
			continue
		}
		for _, pkg := range buys[i].Packages {
			if t, ok := refs[pkg.BuyerRef]; ok {
				t.count++
			} else {
				refs[pkg.BuyerRef] = &target{mediaBuyID: buys[i].MediaBuyID, packageID: pkg.PackageID, count: 1}
			}
		}
	}

	known := make(map[string]bool, len(changes))
	for _, ch := range changes {
		if ch.result.Action != adcp.SyncActionFailed && ch.result.Action != adcp.SyncActionDeleted {
			known[ch.result.CreativeID] = true
		}
	}
	for id := range byID {
		known[id] = true
	}

	creativeIDs := make([]string, 0, len(req.Assignments))
	for id := range req.Assignments {
		creativeIDs = append(creativeIDs, id)
	}
	sort.Strings(creativeIDs)

	var (
		planned []plannedAssignment
		derrs   []adcp.Error
	)
	for _, creativeID := range creativeIDs {
		if !known[creativeID] {
			derrs = append(derrs, adcp.Errorf(adcp.ErrCodeAssignment,
				"cannot assign unknown creative %q", creativeID))
			continue
		}
		for _, ref := range req.Assignments[creativeID] {
			t, ok := refs[ref]
			if !ok {
				derrs = append(derrs, adcp.Errorf(adcp.ErrCodeAssignment,
					"creative %s: no package with buyer_ref %q", creativeID, ref))
				continue
			}
			if t.count > 1 {
				derrs = append(derrs, adcp.Errorf(adcp.ErrCodeAssignment,
					"creative %s: buyer_ref %q matches packages in multiple media buys", creativeID, ref))
				continue
			}
			planned = append(planned, plannedAssignment{
				creativeID: creativeID,
				mediaBuyID: t.mediaBuyID,
				packageID:  t.packageID,
			})
		}
	}
	return planned, derrs, nil
}

// apply executes the planned writes and pushes the touched creatives to the
// ad server. Backend rejections are merged into the per-creative results.
func (s *SyncCreatives) apply(ctx context.Context, tc *ToolContext, changes []plannedChange, assignments []plannedAssignment, resp *adcp.SyncCreativesResponse) *adcp.TransportError {
	var touched []*models.Creative
	for i := range changes {
		ch := &changes[i]
		switch ch.result.Action {
		case adcp.SyncActionCreated:
			if err := s.store.InsertCreative(ctx, ch.record); err != nil {
				return storeError("insert creative "+ch.record.CreativeID, err)
			}
			touched = append(touched, ch.record)
		case adcp.SyncActionUpdated, adcp.SyncActionDeleted:
			if err := s.store.UpdateCreative(ctx, *ch.record); err != nil {
				return storeError("update creative "+ch.record.CreativeID, err)
			}
			if ch.result.Action == adcp.SyncActionUpdated {
				touched = append(touched, ch.record)
			}
		}
	}

	stored := make([]*models.CreativeAssignment, 0, len(assignments))
	for _, pa := range assignments {
		a := &models.CreativeAssignment{
			TenantID:     tc.TenantID(),
			AssignmentID: "asg_" + uuid.NewString()[:8],
			CreativeID:   pa.creativeID,
			MediaBuyID:   pa.mediaBuyID,
			PackageID:    pa.packageID,
		}
		if err := s.store.AssignCreative(ctx, a); err != nil {
			return storeError("assign creative "+pa.creativeID, err)
		}
		stored = append(stored, a)
	}

	if len(touched) == 0 && len(stored) == 0 {
		return nil
	}
	adapter, aerr := s.adapters.ForTenant(tc.Tenant)
	if aerr != nil {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%v", aerr))
		return nil
	}
	results, err := adapter.SyncCreatives(ctx, &adapters.SyncRequest{
		Principal:   tc.Principal,
		Creatives:   touched,
		Assignments: stored,
	})
	if err != nil {
		resp.Errors = append(resp.Errors, adcp.Errorf(adcp.ErrCodeAdapter, "%s: %v", adapter.Name(), err))
		return nil
	}
	for _, ar := range results {
		if ar.Status != adcp.CreativeStatusRejected {
			continue
		}
		for i := range resp.Results {
			if resp.Results[i].CreativeID == ar.CreativeID {
				resp.Results[i].Status = adcp.CreativeStatusRejected
				resp.Results[i].Errors = append(resp.Results[i].Errors, ar.Errors...)
			}
		}
		for _, c := range touched {
			if c.CreativeID == ar.CreativeID {
				c.Status = adcp.CreativeStatusRejected
				if err := s.store.UpdateCreative(ctx, *c); err != nil {
					return storeError("record creative rejection "+c.CreativeID, err)
				}
			}
		}
	}
	return nil
}

// sameCreativeContent compares the buyer-mutable fields, ignoring identity,
// review status and timestamps.
func sameCreativeContent(a, b *models.Creative) bool {
	ac, bc := *a, *b
	ac.Status, bc.Status = "", ""
	ac.CreatedAt, bc.CreatedAt = time.Time{}, time.Time{}
	ac.UpdatedAt, bc.UpdatedAt = time.Time{}, time.Time{}
	ra, err := json.Marshal(ac)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(bc)
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}
