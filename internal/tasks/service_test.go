package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/a2a"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/token"
)

var taskClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// webhookRecorder collects webhook deliveries for assertions.
type webhookRecorder struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	respond  int
	failures int
}

func newWebhookRecorder() (*webhookRecorder, *httptest.Server) {
	rec := &webhookRecorder{respond: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if rec.failures > 0 {
			rec.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		rec.bodies = append(rec.bodies, body)
		rec.headers = append(rec.headers, r.Header.Clone())
		w.WriteHeader(rec.respond)
	}))
	return rec, srv
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

// failNext makes the recorder reject the next n deliveries with a 500.
func (r *webhookRecorder) failNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

func (r *webhookRecorder) last() ([]byte, http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bodies) == 0 {
		return nil, nil
	}
	return r.bodies[len(r.bodies)-1], r.headers[len(r.headers)-1]
}

func testService(t *testing.T) (*Service, *models.InMemorySalesStore) {
	t.Helper()
	store := models.NewInMemorySalesStore()
	sender := NewSender(time.Second, "", observability.NewNoOpRegistry())
	sender.retryDelay = 10 * time.Millisecond
	svc := NewService(store, sender, observability.NewNoOpRegistry())
	svc.now = func() time.Time { return taskClock }
	return svc, store
}

func TestTaskLifecycleDeliversWebhook(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	svc, store := testService(t)
	ctx := context.Background()

	push := &models.PushNotificationConfig{URL: srv.URL, Token: "secret-tok"}
	task, err := svc.Create(ctx, "t1", "p1", "", "create_media_buy", "a2a",
		json.RawMessage(`{"buyer_ref": "br-1"}`), push)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != models.TaskStatusWorking || task.ContextID == "" {
		t.Fatalf("created task = %s/%s", task.Status, task.ContextID)
	}
	if _, err := store.GetContext(ctx, "t1", task.ContextID); err != nil {
		t.Errorf("context not stored: %v", err)
	}

	if err := svc.Complete(ctx, task, json.RawMessage(`{"media_buy_id": "mb_1", "status": "active"}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("webhook deliveries = %d, want 1", rec.count())
	}

	body, hdr := rec.last()
	if hdr.Get("X-A2A-Notification-Token") != "secret-tok" {
		t.Errorf("token header = %q", hdr.Get("X-A2A-Notification-Token"))
	}
	if err := token.Verify([]byte("secret-tok"), body, hdr.Get("X-ADCP-Signature")); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}

	var wire a2a.Task
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatalf("decode webhook body: %v", err)
	}
	if wire.Kind != a2a.KindTask || wire.Status.State != a2a.TaskStateCompleted {
		t.Errorf("payload = %s/%s", wire.Kind, wire.Status.State)
	}
	if len(wire.Artifacts) != 1 || wire.Artifacts[0].Parts[0].Data["media_buy_id"] != "mb_1" {
		t.Errorf("artifacts = %+v", wire.Artifacts)
	}

	stored, err := store.GetTask(ctx, "t1", task.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != models.TaskStatusCompleted {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestIntermediateStateSendsStatusUpdate(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	svc, _ := testService(t)
	ctx := context.Background()
	task, err := svc.Create(ctx, "t1", "p1", "ctx_7", "create_media_buy", "a2a", nil,
		&models.PushNotificationConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Submit(ctx, task, json.RawMessage(`{"status": "submitted"}`)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	body, _ := rec.last()
	var event a2a.TaskStatusUpdateEvent
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatalf("decode webhook body: %v", err)
	}
	if event.Kind != a2a.KindStatusUpdate || event.Status.State != a2a.TaskStateSubmitted || event.Final {
		t.Errorf("event = %+v", event)
	}
	if event.TaskID != task.TaskID || event.ContextID != "ctx_7" {
		t.Errorf("event ids = %s/%s", event.TaskID, event.ContextID)
	}
}

func TestFailedTaskMergesErrorIntoResult(t *testing.T) {
	task := &models.Task{
		TaskID:       "task_x",
		ContextID:    "ctx_x",
		Skill:        "sync_creatives",
		Status:       models.TaskStatusFailed,
		Result:       json.RawMessage(`{"summary": {"failed": 2}}`),
		ErrorMessage: "strict validation: 2 creatives failed",
		UpdatedAt:    taskClock,
	}

	payload, err := BuildPayload(task)
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	wire, ok := payload.(*a2a.Task)
	if !ok {
		t.Fatalf("payload type = %T", payload)
	}
	data := wire.Artifacts[0].Parts[0].Data
	if data["error"] != "strict validation: 2 creatives failed" {
		t.Errorf("error not merged: %+v", data)
	}
	if _, ok := data["summary"]; !ok {
		t.Errorf("partial result dropped: %+v", data)
	}
}

func TestCancelSemantics(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "t1", "p1", "", "create_media_buy", "mcp", nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Another principal cannot see the task, let alone cancel it.
	if _, err := svc.Cancel(ctx, "t1", task.TaskID, "p2"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("foreign cancel = %v, want not found", err)
	}

	canceled, err := svc.Cancel(ctx, "t1", task.TaskID, "p1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if canceled.Status != models.TaskStatusCanceled {
		t.Errorf("status = %q", canceled.Status)
	}

	// Terminal tasks stay put.
	if _, err := svc.Cancel(ctx, "t1", task.TaskID, "p1"); !errors.Is(err, ErrNotCancelable) {
		t.Errorf("second cancel = %v, want not cancelable", err)
	}
}

func TestNotifyReachesStoredPushConfigs(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	svc, store := testService(t)
	ctx := context.Background()
	task, err := svc.Create(ctx, "t1", "p1", "", "update_media_buy", "a2a", nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpsertPushConfig(ctx, &models.PushNotificationConfig{
		ID:       "pnc_1",
		TenantID: "t1",
		TaskID:   task.TaskID,
		URL:      srv.URL,
	}); err != nil {
		t.Fatalf("UpsertPushConfig: %v", err)
	}

	if err := svc.Complete(ctx, task, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("webhook deliveries = %d, want 1", rec.count())
	}
}
