package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/a2a"
	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/config"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/skills"
	"github.com/toller892/adcp-salesagent/internal/tasks"
)

const tenantHost = "examiner.sales.test"

type apiFixture struct {
	store  *models.InMemorySalesStore
	server *Server
	router *mux.Router
}

// seedAPIStore builds one tenant with two principals and a bookable
// product so full message flows can run against the mock backend.
func seedAPIStore(t *testing.T) *models.InMemorySalesStore {
	t.Helper()
	ctx := context.Background()
	store := models.NewInMemorySalesStore()

	if err := store.InsertTenant(ctx, &models.Tenant{
		TenantID:         "t1",
		Name:             "Daily Examiner",
		Subdomain:        "examiner",
		AdServer:         models.AdServerMock,
		IsActive:         true,
		PublisherDomains: []string{"examiner.test"},
	}); err != nil {
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
	if err := store.InsertProduct(ctx, &models.Product{
		TenantID:     "t1",
		ProductID:    "prod_ros",
		Name:         "Run of site display",
		Description:  "Standard display across every section",
		FormatIDs:    []adcp.FormatRef{{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"}},
		DeliveryType: adcp.DeliveryTypeNonGuaranteed,
		PricingOptions: []adcp.PricingOption{
			{PricingOptionID: "cpm_usd", PricingModel: "cpm", Currency: "USD", Rate: 5, IsFixed: true},
		},
	}); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}
	return store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := seedAPIStore(t)
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

	taskSvc := tasks.NewService(store, tasks.NewSender(time.Second, "", metrics), metrics)
	cfg := config.Config{AgentName: "Examiner Sales Agent", AgentVersion: "1.2.0"}
	srv := NewServer(zap.NewNop(), store, reg, taskSvc,
		auth.NewResolver(store, "sales.test"), auth.NewAuthenticator(store, metrics),
		adapterReg, nil, nil, metrics, cfg)
	return &apiFixture{store: store, server: srv, router: srv.Routes()}
}

// rpc posts a JSON-RPC body to path and returns the recorder.
func (f *apiFixture) rpc(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Host = tenantHost
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// decodeRPC unmarshals the JSON-RPC envelope with the result left raw.
func decodeRPC(t *testing.T, w *httptest.ResponseRecorder) (json.RawMessage, json.RawMessage, *a2a.Error) {
	t.Helper()
	var resp struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *a2a.Error      `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp.ID, resp.Result, resp.Error
}

func decodeTask(t *testing.T, raw json.RawMessage) a2a.Task {
	t.Helper()
	var task a2a.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		t.Fatalf("decode task %q: %v", raw, err)
	}
	return task
}

func TestBothA2APathsAccepted(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"list_creative_formats"}}]}}}`

	for _, path := range []string{"/a2a", "/a2a/"} {
		w := f.rpc(t, path, "", body)
		if w.Code != http.StatusOK {
			t.Fatalf("POST %s: status %d", path, w.Code)
		}
		_, result, rpcErr := decodeRPC(t, w)
		if rpcErr != nil {
			t.Fatalf("POST %s: unexpected error %v", path, rpcErr)
		}
		if len(result) == 0 {
			t.Fatalf("POST %s: empty result", path)
		}
	}
}

func TestMessageSendExplicitSkill(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":"r1","method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"get_products","input":{"brief":"reach news readers"}}}]}}}`

	w := f.rpc(t, "/a2a", "tok-p1", body)
	_, result, rpcErr := decodeRPC(t, w)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	task := decodeTask(t, result)
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}
	if len(task.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(task.Artifacts))
	}
	art := task.Artifacts[0]
	if art.Name != "get_products_result" {
		t.Errorf("artifact name = %q", art.Name)
	}
	var data map[string]any
	for _, part := range art.Parts {
		if part.Kind == a2a.PartKindData {
			data = part.Data
		}
	}
	if data == nil {
		t.Fatalf("no data part in artifact")
	}
	products, ok := data["products"].([]any)
	if !ok || len(products) != 1 {
		t.Fatalf("products = %v", data["products"])
	}
	if !strings.HasPrefix(task.ID, "task_") || !strings.HasPrefix(task.ContextID, "ctx_") {
		t.Errorf("ids not minted: task=%s context=%s", task.ID, task.ContextID)
	}
}

func TestMessageSendNumericIDsCoerced(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":7,"method":"message/send","params":{"message":{"messageId":12345,"role":"user","parts":[{"kind":"data","data":{"skill":"list_creative_formats"}}]}}}`

	w := f.rpc(t, "/a2a", "", body)
	id, _, rpcErr := decodeRPC(t, w)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	if string(id) != "7" {
		t.Errorf("id echoed as %s, want 7", id)
	}
}

func TestMessageSendKeywordRouting(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"text","text":"What display products do you offer for coffee brands?"}]}}}`

	w := f.rpc(t, "/a2a", "tok-p1", body)
	_, result, rpcErr := decodeRPC(t, w)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	task := decodeTask(t, result)
	if len(task.Artifacts) != 1 || task.Artifacts[0].Name != "get_products_result" {
		t.Fatalf("expected a get_products artifact, got %+v", task.Artifacts)
	}
}

func TestMessageSendUnknownSkill(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"borrow_money"}}]}}}`

	w := f.rpc(t, "/a2a", "tok-p1", body)
	_, _, rpcErr := decodeRPC(t, w)
	if rpcErr == nil || rpcErr.Code != adcp.CodeSkillNotFound {
		t.Fatalf("error = %+v, want code %d", rpcErr, adcp.CodeSkillNotFound)
	}
}

func TestMessageSendRequiresAuthForBookingSkills(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"list_creatives"}}]}}}`

	w := f.rpc(t, "/a2a", "", body)
	_, _, rpcErr := decodeRPC(t, w)
	if rpcErr == nil || rpcErr.Code != adcp.CodeUnauthorized {
		t.Fatalf("error = %+v, want code %d", rpcErr, adcp.CodeUnauthorized)
	}
}

func TestWrongTenantTokenNamesResolvedTenant(t *testing.T) {
	f := newAPIFixture(t)
	if err := f.store.InsertTenant(context.Background(), &models.Tenant{
		TenantID: "t2", Name: "Other", Subdomain: "other", AdServer: models.AdServerMock, IsActive: true,
	}); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}
	if err := f.store.InsertPrincipal(context.Background(), &models.Principal{
		TenantID: "t2", PrincipalID: "px", Name: "Stranger", AccessToken: "tok-t2",
		PlatformMappings: map[string]json.RawMessage{},
	}); err != nil {
		t.Fatalf("InsertPrincipal: %v", err)
	}
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"get_products","input":{"brief":"x"}}}]}}}`

	w := f.rpc(t, "/a2a", "tok-t2", body)
	_, _, rpcErr := decodeRPC(t, w)
	if rpcErr == nil || rpcErr.Code != adcp.CodeUnauthorized {
		t.Fatalf("error = %+v, want unauthorized", rpcErr)
	}
	if !strings.Contains(rpcErr.Message, "t1") {
		t.Errorf("message %q does not name the resolved tenant", rpcErr.Message)
	}
}

func TestSubmittedTaskHasNoArtifacts(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	tenant, err := f.store.GetTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	tenant.HumanReviewRequired = true
	if err := f.store.UpdateTenant(ctx, *tenant); err != nil {
		t.Fatalf("UpdateTenant: %v", err)
	}

	start := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"create_media_buy","input":{"buyer_ref":"br-rev","brand_manifest":{"name":"Acme"},"start_time":%q,"end_time":%q,"packages":[{"buyer_ref":"pk1","product_id":"prod_ros","pricing_option_id":"cpm_usd","budget":{"total":5000,"currency":"USD"}}]}}}]}}}`, start, end)

	w := f.rpc(t, "/a2a", "tok-p1", body)
	_, result, rpcErr := decodeRPC(t, w)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	task := decodeTask(t, result)
	if task.Status.State != a2a.TaskStateSubmitted {
		t.Fatalf("state = %s, want submitted", task.Status.State)
	}
	if len(task.Artifacts) != 0 {
		t.Fatalf("submitted task has %d artifacts, want none", len(task.Artifacts))
	}

	stored, err := f.store.GetTask(ctx, "t1", task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != models.TaskStatusSubmitted {
		t.Errorf("stored status = %s", stored.Status)
	}
	steps, err := f.store.ListWorkflowSteps(ctx, "t1", task.ID)
	if err != nil || len(steps) != 1 {
		t.Fatalf("workflow steps = %d (%v), want 1", len(steps), err)
	}
	if steps[0].Status != models.StepStatusPending || steps[0].StepType != models.StepTypeApproval {
		t.Errorf("step = %+v", steps[0])
	}
}

func TestMessageStreamEmitsSingleEvent(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"message/stream","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"list_creative_formats"}}]}}}`

	w := f.rpc(t, "/a2a", "", body)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	payload := strings.TrimSpace(strings.TrimPrefix(w.Body.String(), "data: "))
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("decode event %q: %v", payload, err)
	}
	task := decodeTask(t, resp.Result)
	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s", task.Status.State)
	}
	if strings.Count(w.Body.String(), "data: ") != 1 {
		t.Errorf("expected exactly one event, body %q", w.Body.String())
	}
}

func TestTasksGetAndCancel(t *testing.T) {
	f := newAPIFixture(t)
	send := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"get_products","input":{"brief":"news"}}}]}}}`
	_, result, rpcErr := decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", send))
	if rpcErr != nil {
		t.Fatalf("send: %+v", rpcErr)
	}
	created := decodeTask(t, result)

	get := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":%q}}`, created.ID)
	_, result, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", get))
	if rpcErr != nil {
		t.Fatalf("get: %+v", rpcErr)
	}
	fetched := decodeTask(t, result)
	if fetched.ID != created.ID || fetched.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("fetched = %+v", fetched)
	}
	if len(fetched.Artifacts) != 1 {
		t.Errorf("fetched artifacts = %d, want 1", len(fetched.Artifacts))
	}

	// Another principal cannot see the task.
	_, _, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p2", get))
	if rpcErr == nil || rpcErr.Code != adcp.CodeTaskNotFound {
		t.Fatalf("cross-principal get = %+v, want task not found", rpcErr)
	}

	// Cancel on a terminal task maps to the dedicated code.
	cancel := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"tasks/cancel","params":{"id":%q}}`, created.ID)
	_, _, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", cancel))
	if rpcErr == nil || rpcErr.Code != adcp.CodeNotCancelable {
		t.Fatalf("cancel = %+v, want code %d", rpcErr, adcp.CodeNotCancelable)
	}
}

func TestPushConfigRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	send := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"data","data":{"skill":"get_products","input":{"brief":"news"}}}]}}}`
	_, result, rpcErr := decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", send))
	if rpcErr != nil {
		t.Fatalf("send: %+v", rpcErr)
	}
	taskID := decodeTask(t, result).ID

	set := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"tasks/pushNotificationConfig/set","params":{"taskId":%q,"pushNotificationConfig":{"url":"https://buyer.example.com/hooks","token":"vt-1","authentication":{"schemes":["Bearer"],"credentials":"cred-9"}}}}`, taskID)
	_, result, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", set))
	if rpcErr != nil {
		t.Fatalf("set: %+v", rpcErr)
	}
	var stored a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(result, &stored); err != nil {
		t.Fatalf("decode set result: %v", err)
	}
	if stored.PushNotificationConfig.ID == "" || stored.TaskID != taskID {
		t.Fatalf("stored = %+v", stored)
	}

	list := fmt.Sprintf(`{"jsonrpc":"2.0","id":3,"method":"tasks/pushNotificationConfig/list","params":{"id":%q}}`, taskID)
	_, result, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", list))
	if rpcErr != nil {
		t.Fatalf("list: %+v", rpcErr)
	}
	var configs []a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(result, &configs); err != nil {
		t.Fatalf("decode list result: %v", err)
	}
	if len(configs) != 1 || configs[0].PushNotificationConfig.URL != "https://buyer.example.com/hooks" {
		t.Fatalf("configs = %+v", configs)
	}

	del := fmt.Sprintf(`{"jsonrpc":"2.0","id":4,"method":"tasks/pushNotificationConfig/delete","params":{"id":%q,"pushNotificationConfigId":%q}}`, taskID, stored.PushNotificationConfig.ID)
	if _, _, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", del)); rpcErr != nil {
		t.Fatalf("delete: %+v", rpcErr)
	}
	_, result, rpcErr = decodeRPC(t, f.rpc(t, "/a2a", "tok-p1", list))
	if rpcErr != nil {
		t.Fatalf("list after delete: %+v", rpcErr)
	}
	configs = nil
	if err := json.Unmarshal(result, &configs); err != nil {
		t.Fatalf("decode list result: %v", err)
	}
	if len(configs) != 0 {
		t.Fatalf("configs after delete = %+v", configs)
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newAPIFixture(t)
	w := f.rpc(t, "/a2a", "", `{"jsonrpc":"2.0","id":1,"method":"tasks/resubmit"}`)
	_, _, rpcErr := decodeRPC(t, w)
	if rpcErr == nil || rpcErr.Code != adcp.CodeMethodNotFound {
		t.Fatalf("error = %+v, want method not found", rpcErr)
	}
}

func TestMalformedEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	w := f.rpc(t, "/a2a", "", `{"jsonrpc":"2.0", nope`)
	_, _, rpcErr := decodeRPC(t, w)
	if rpcErr == nil || rpcErr.Code != adcp.CodeParse {
		t.Fatalf("error = %+v, want parse error", rpcErr)
	}
}
