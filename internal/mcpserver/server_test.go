package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/skills"
)

func newTestServer(t *testing.T) (*Server, *models.InMemorySalesStore) {
	t.Helper()
	ctx := context.Background()
	store := models.NewInMemorySalesStore()

	if err := store.InsertTenant(ctx, &models.Tenant{
		TenantID:  "t1",
		Name:      "Daily Examiner",
		Subdomain: "examiner",
		AdServer:  models.AdServerMock,
		IsActive:  true,
	}); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}
	if err := store.InsertPrincipal(ctx, &models.Principal{
		TenantID: "t1", PrincipalID: "p1", Name: "Acme DSP", AccessToken: "tok-p1",
		PlatformMappings: map[string]json.RawMessage{"mock": json.RawMessage(`{"advertiser_id":"adv-1"}`)},
	}); err != nil {
		t.Fatalf("InsertPrincipal: %v", err)
	}
	if err := store.InsertProduct(ctx, &models.Product{
		TenantID:     "t1",
		ProductID:    "prod_ros",
		Name:         "Run of site display",
		FormatIDs:    []adcp.FormatRef{{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"}},
		DeliveryType: adcp.DeliveryTypeNonGuaranteed,
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "cpm_usd", PricingModel: "cpm", Currency: "USD", Rate: 5, IsFixed: true},
		},
	}); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}

	metrics := observability.NewNoOpRegistry()
	adapterReg := adapters.NewRegistry(analytics.NewMockAnalytics(), metrics)
	reg := skills.NewRegistry(nil, metrics, zap.NewNop())
	reg.Register(skills.NewGetProducts(store, nil))
	reg.Register(skills.NewCreateMediaBuy(store, adapterReg))
	reg.Register(skills.NewUpdateMediaBuy(store, adapterReg))
	reg.Register(skills.NewGetMediaBuyDelivery(store, adapterReg, nil))
	reg.Register(skills.NewUpdatePerformanceIndex(store, adapterReg))
	reg.Register(skills.NewSyncCreatives(store, adapterReg))
	reg.Register(skills.NewListCreatives(store))
	reg.Register(skills.NewListCreativeFormats(store))
	reg.Register(skills.NewListAuthorizedProperties(store))

	srv := New(reg, auth.NewResolver(store, "sales.test"), auth.NewAuthenticator(store, metrics),
		"Examiner Sales Agent", "1.2.0", zap.NewNop())
	return srv, store
}

func authedHeaders(token string) auth.Headers {
	kv := map[string]string{}
	if token != "" {
		kv[auth.HeaderAuthorization] = "Bearer " + token
	}
	return auth.NewHeaders("examiner.sales.test", kv)
}

func connectSession(t *testing.T, m *mcp.Server) *mcp.ClientSession {
	t.Helper()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(runCtx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Logf("mcp server run exited with: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Log("timed out waiting for mcp server shutdown")
		}
	})
	return session
}

// decodeStructured re-marshals the structured content into out.
func decodeStructured(t *testing.T, result *mcp.CallToolResult, out any) {
	t.Helper()
	if result == nil || result.StructuredContent == nil {
		t.Fatalf("no structured content in result: %#v", result)
	}
	raw, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("re-marshal structured content: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode structured content %s: %v", raw, err)
	}
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// expectToolError accepts both surfacing styles: an in-band IsError result
// or a call-level error.
func expectToolError(t *testing.T, result *mcp.CallToolResult, err error, fragment string) {
	t.Helper()
	if err != nil {
		if fragment != "" && !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q does not mention %q", err.Error(), fragment)
		}
		return
	}
	if result == nil || !result.IsError {
		t.Fatalf("expected a tool error, got %#v", result)
	}
	if fragment != "" && !strings.Contains(resultText(result), fragment) {
		t.Fatalf("error text %q does not mention %q", resultText(result), fragment)
	}
}

func TestToolsRegistered(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connectSession(t, srv.ServerFor(authedHeaders("tok-p1")))

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	expected := append([]string(nil), adcp.SkillNames()...)
	sort.Strings(expected)
	if len(names) != len(expected) {
		t.Fatalf("expected %d tools, got %d: %v", len(expected), len(names), names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Fatalf("unexpected tool list: got %v want %v", names, expected)
		}
	}
}

func TestGetProductsTool(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connectSession(t, srv.ServerFor(authedHeaders("tok-p1")))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      adcp.SkillGetProducts,
		Arguments: map[string]any{"brief": "reach news readers"},
	})
	if err != nil {
		t.Fatalf("call get_products: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}

	var out adcp.GetProductsResponse
	decodeStructured(t, result, &out)
	if len(out.Products) != 1 || out.Products[0].ProductID != "prod_ros" {
		t.Fatalf("products = %+v", out.Products)
	}
	if out.AdCPVersion != adcp.Version {
		t.Errorf("adcp_version = %q", out.AdCPVersion)
	}
	if text := resultText(result); text != "Found 1 products" {
		t.Errorf("text content = %q", text)
	}
}

func TestAnonymousDiscoveryAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connectSession(t, srv.ServerFor(authedHeaders("")))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      adcp.SkillListCreativeFormats,
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("call list_creative_formats: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}
	var out adcp.ListCreativeFormatsResponse
	decodeStructured(t, result, &out)
	if out.AdCPVersion != adcp.Version {
		t.Errorf("adcp_version = %q", out.AdCPVersion)
	}
}

func TestAnonymousBookingRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connectSession(t, srv.ServerFor(authedHeaders("")))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: adcp.SkillCreateMediaBuy,
		Arguments: map[string]any{
			"buyer_ref": "br-1",
			"packages":  []map[string]any{{"buyer_ref": "pk1", "product_id": "prod_ros", "pricing_option_id": "cpm_usd"}},
		},
	})
	expectToolError(t, result, err, "auth")
}

func TestCreateMediaBuyTool(t *testing.T) {
	srv, store := newTestServer(t)
	session := connectSession(t, srv.ServerFor(authedHeaders("tok-p1")))

	start := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: adcp.SkillCreateMediaBuy,
		Arguments: map[string]any{
			"buyer_ref":      "br-mcp",
			"brand_manifest": map[string]any{"name": "Acme"},
			"start_time":     start,
			"end_time":       end,
			"packages": []map[string]any{{
				"buyer_ref":         "pk1",
				"product_id":        "prod_ros",
				"pricing_option_id": "cpm_usd",
				"budget":            map[string]any{"total": 5000, "currency": "USD"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("call create_media_buy: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}

	var out adcp.CreateMediaBuyResponse
	decodeStructured(t, result, &out)
	if out.MediaBuyID == "" || out.Status != adcp.StatusPendingActivation {
		t.Fatalf("response = %+v", out)
	}
	if len(out.Packages) != 1 {
		t.Fatalf("packages = %+v", out.Packages)
	}
	if want := fmt.Sprintf("Created media buy %s with 1 packages", out.MediaBuyID); resultText(result) != want {
		t.Errorf("text content = %q, want %q", resultText(result), want)
	}

	buy, err := store.GetMediaBuy(context.Background(), "t1", out.MediaBuyID)
	if err != nil {
		t.Fatalf("GetMediaBuy: %v", err)
	}
	if buy.PrincipalID != "p1" || buy.BuyerRef != "br-mcp" {
		t.Errorf("stored buy = %+v", buy)
	}
}

func TestApexHostHasNoTenant(t *testing.T) {
	srv, _ := newTestServer(t)
	session := connectSession(t, srv.ServerFor(auth.NewHeaders("sales.test", nil)))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      adcp.SkillGetProducts,
		Arguments: map[string]any{"brief": "anything"},
	})
	expectToolError(t, result, err, "no tenant resolved")
}
