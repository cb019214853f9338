package skills

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/ratelimit"
)

var displayFormat = adcp.FormatRef{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"}

// seedStore builds a tenant with two principals, an inventory profile, two
// products (one restricted to p1) and a format catalog entry.
func seedStore(t *testing.T) *models.InMemorySalesStore {
	t.Helper()
	ctx := context.Background()
	store := models.NewInMemorySalesStore()

	tenant := &models.Tenant{
		TenantID:         "t1",
		Name:             "Daily Examiner",
		Subdomain:        "examiner",
		AdServer:         models.AdServerMock,
		IsActive:         true,
		PublisherDomains: []string{"examiner.test"},
	}
	if err := store.InsertTenant(ctx, tenant); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}

	for _, p := range []*models.Principal{
		{TenantID: "t1", PrincipalID: "p1", Name: "Acme DSP", AccessToken: "tok-p1",
			PlatformMappings: map[string]json.RawMessage{"mock": json.RawMessage(`{"advertiser_id":"adv-1"}`)}},
		{TenantID: "t1", PrincipalID: "p2", Name: "Rival DSP", AccessToken: "tok-p2",
			PlatformMappings: map[string]json.RawMessage{}},
	} {
		if err := store.InsertPrincipal(ctx, p); err != nil {
			t.Fatalf("InsertPrincipal(%s): %v", p.PrincipalID, err)
		}
	}

	if err := store.InsertInventoryProfile(ctx, &models.InventoryProfile{
		TenantID:   "t1",
		ProfileID:  "prof_ros",
		Name:       "Run of site",
		AdUnits:    []string{"au_top"},
		Placements: []string{"pl_leader"},
		Properties: []adcp.Property{{
			PropertyType: adcp.PropertyTypeWebsite,
			Name:         "Daily Examiner",
			Identifiers:  []adcp.PropertyIdentifier{{Type: "domain", Value: "examiner.test"}},
		}},
	}); err != nil {
		t.Fatalf("InsertInventoryProfile: %v", err)
	}

	for _, p := range []*models.Product{
		{
			TenantID:     "t1",
			ProductID:    "prod_ros",
			Name:         "Run of site display",
			Description:  "Standard display across every section",
			FormatIDs:    []adcp.FormatRef{displayFormat},
			DeliveryType: "non_guaranteed",
			PricingOptions: []adcp.PricingOption{
				{PricingOptionID: "cpm_usd", PricingModel: "cpm", Currency: "USD", Rate: 5, IsFixed: true},
			},
			InventoryProfileID: "prof_ros",
		},
		{
			TenantID:     "t1",
			ProductID:    "prod_private",
			Name:         "Homepage takeover",
			FormatIDs:    []adcp.FormatRef{displayFormat},
			DeliveryType: "guaranteed",
			PricingOptions: []adcp.PricingOption{
				{PricingOptionID: "cpm_usd", PricingModel: "cpm", Currency: "USD", Rate: 20, IsFixed: true},
			},
			AllowedPrincipalIDs: []string{"p1"},
		},
	} {
		if err := store.InsertProduct(ctx, p); err != nil {
			t.Fatalf("InsertProduct(%s): %v", p.ProductID, err)
		}
	}

	if err := store.InsertCreativeFormat(ctx, adcp.Format{
		FormatID:   "display_300x250",
		AgentURL:   adcp.DefaultFormatAgentURL,
		Name:       "Medium rectangle",
		Type:       adcp.FormatTypeDisplay,
		IsStandard: true,
	}); err != nil {
		t.Fatalf("InsertCreativeFormat: %v", err)
	}
	return store
}

func testAdapters() *adapters.Registry {
	return adapters.NewRegistry(analytics.NewMockAnalytics(), observability.NewNoOpRegistry())
}

// toolCtx builds a request context for the seeded tenant. An empty
// principalID means an anonymous discovery call.
func toolCtx(t *testing.T, store models.Store, principalID string) *ToolContext {
	t.Helper()
	ctx := context.Background()
	tenant, err := store.GetTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	tc := &ToolContext{
		Tenant:           tenant,
		Transport:        TransportMCP,
		RequestTimestamp: time.Now().UTC(),
	}
	if principalID != "" {
		p, err := store.GetPrincipal(ctx, "t1", principalID)
		if err != nil {
			t.Fatalf("GetPrincipal(%s): %v", principalID, err)
		}
		tc.Principal = p
	}
	return tc
}

type stubResponse struct{ text string }

func (r *stubResponse) Summary() string { return r.text }

type stubSkill struct {
	name string
	auth bool
	got  json.RawMessage
}

func (s *stubSkill) Name() string       { return s.name }
func (s *stubSkill) RequiresAuth() bool { return s.auth }
func (s *stubSkill) Execute(_ context.Context, _ *ToolContext, params json.RawMessage) (Response, *adcp.TransportError) {
	s.got = params
	return &stubResponse{text: "ok"}, nil
}

func TestDispatchUnknownSkill(t *testing.T) {
	store := seedStore(t)
	reg := NewRegistry(nil, nil, nil)
	tc := toolCtx(t, store, "p1")

	_, terr := reg.Dispatch(context.Background(), tc, "summon_inventory", nil)
	if terr == nil || terr.Kind != adcp.KindMethodNotFound {
		t.Fatalf("expected method_not_found for unknown skill, got %+v", terr)
	}
}

func TestDispatchAnonymousDiscoveryAllowed(t *testing.T) {
	store := seedStore(t)
	reg := NewRegistry(nil, nil, nil)
	reg.Register(NewListCreativeFormats(store))

	tc := toolCtx(t, store, "")
	resp, terr := reg.Dispatch(context.Background(), tc, adcp.SkillListCreativeFormats, nil)
	if terr != nil {
		t.Fatalf("anonymous list_creative_formats: %+v", terr)
	}
	formats := resp.(*adcp.ListCreativeFormatsResponse)
	if len(formats.Formats) != 1 {
		t.Errorf("formats = %d, want 1", len(formats.Formats))
	}
}

func TestDispatchAnonymousBlockedOutsideAllowList(t *testing.T) {
	store := seedStore(t)
	reg := NewRegistry(nil, nil, nil)
	// The stub claims it needs no auth; the registry still refuses because
	// sync_creatives is not a discovery skill.
	stub := &stubSkill{name: adcp.SkillSyncCreatives, auth: false}
	reg.Register(stub)

	tc := toolCtx(t, store, "")
	_, terr := reg.Dispatch(context.Background(), tc, adcp.SkillSyncCreatives, json.RawMessage(`{}`))
	if terr == nil || terr.Kind != adcp.KindMissingAuth {
		t.Fatalf("expected missing_auth, got %+v", terr)
	}
	if stub.got != nil {
		t.Error("skill ran despite missing principal")
	}
}

func TestDispatchRateLimited(t *testing.T) {
	store := seedStore(t)
	limiter := ratelimit.NewPrincipalLimiter(ratelimit.Config{
		Capacity: 1, RefillRate: 1, Enabled: true,
	}, nil)
	reg := NewRegistry(limiter, nil, nil)
	reg.Register(&stubSkill{name: adcp.SkillListCreatives, auth: true})

	tc := toolCtx(t, store, "p1")
	if _, terr := reg.Dispatch(context.Background(), tc, adcp.SkillListCreatives, nil); terr != nil {
		t.Fatalf("first call: %+v", terr)
	}
	_, terr := reg.Dispatch(context.Background(), tc, adcp.SkillListCreatives, nil)
	if terr == nil || terr.Kind != adcp.KindUnavailable {
		t.Fatalf("expected unavailable after bucket drained, got %+v", terr)
	}
}

func TestDispatchStripsVersionAndUnwrapsInput(t *testing.T) {
	store := seedStore(t)
	reg := NewRegistry(nil, nil, nil)
	stub := &stubSkill{name: adcp.SkillListCreatives, auth: true}
	reg.Register(stub)

	tc := toolCtx(t, store, "p1")
	params := json.RawMessage(`{"input": {"adcp_version": "1.6.0", "filters": {"status": "approved"}}}`)
	if _, terr := reg.Dispatch(context.Background(), tc, adcp.SkillListCreatives, params); terr != nil {
		t.Fatalf("Dispatch: %+v", terr)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(stub.got, &got); err != nil {
		t.Fatalf("unmarshal forwarded params: %v", err)
	}
	if _, ok := got["adcp_version"]; ok {
		t.Error("adcp_version forwarded to skill")
	}
	if _, ok := got["input"]; ok {
		t.Error("input wrapper forwarded to skill")
	}
	if _, ok := got["filters"]; !ok {
		t.Error("unwrapped filters missing")
	}
}

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name   string
		skill  string
		in     string
		want   map[string]string
		absent []string
	}{
		{
			name:  "empty params become an object",
			skill: adcp.SkillGetProducts,
			in:    "",
			want:  map[string]string{},
		},
		{
			name:   "parameters wrapper unwraps",
			skill:  adcp.SkillGetProducts,
			in:     `{"parameters": {"brief": "coffee lovers"}}`,
			want:   map[string]string{"brief": `"coffee lovers"`},
			absent: []string{"parameters"},
		},
		{
			name:   "updates wrapper flattens",
			skill:  adcp.SkillUpdateMediaBuy,
			in:     `{"media_buy_id": "mb_1", "updates": {"paused": true}}`,
			want:   map[string]string{"media_buy_id": `"mb_1"`, "paused": "true"},
			absent: []string{"updates"},
		},
		{
			name:   "explicit keys win over updates",
			skill:  adcp.SkillUpdateMediaBuy,
			in:     `{"media_buy_id": "mb_1", "paused": false, "updates": {"paused": true}}`,
			want:   map[string]string{"paused": "false"},
			absent: []string{"updates"},
		},
		{
			name:   "singular media_buy_id lifts to plural",
			skill:  adcp.SkillGetMediaBuyDelivery,
			in:     `{"media_buy_id": "mb_9"}`,
			want:   map[string]string{"media_buy_ids": `"mb_9"`},
			absent: []string{"media_buy_id"},
		},
		{
			name:   "plural wins over singular",
			skill:  adcp.SkillGetMediaBuyDelivery,
			in:     `{"media_buy_id": "mb_9", "media_buy_ids": ["mb_1"]}`,
			want:   map[string]string{"media_buy_ids": `["mb_1"]`},
			absent: []string{"media_buy_id"},
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(tt.skill, json.RawMessage(tt.in))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			var m map[string]json.RawMessage
			if err := json.Unmarshal(out, &m); err != nil {
				t.Fatalf("unmarshal normalized params: %v", err)
			}
			for key, want := range tt.want {
				if string(m[key]) != want {
					t.Errorf("%s = %s, want %s", key, m[key], want)
				}
			}
			for _, key := range tt.absent {
				if _, ok := m[key]; ok {
					t.Errorf("%s still present after normalization", key)
				}
			}
		})
	}
}

func TestNormalizeRejectsNonObject(t *testing.T) {
	if _, err := Normalize(adcp.SkillGetProducts, json.RawMessage(`[1, 2]`)); err == nil {
		t.Fatal("expected error for array params")
	}
}
