package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

func TestSendAppliesStoredAuthScheme(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()

	sender := NewSender(time.Second, "", observability.NewNoOpRegistry())
	cfg := &models.PushNotificationConfig{
		URL:         srv.URL,
		AuthSchemes: []string{"Bearer", "Basic"},
		Credentials: "cred-123",
	}
	if err := sender.Send(context.Background(), WebhookKindTask, cfg, map[string]string{"ok": "yes"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, hdr := rec.last()
	if got := hdr.Get("Authorization"); got != "Bearer cred-123" {
		t.Errorf("authorization = %q, want first scheme applied", got)
	}
	if got := hdr.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
}

func TestSendRetriesOnceOnFailure(t *testing.T) {
	rec, srv := newWebhookRecorder()
	defer srv.Close()
	rec.failNext(1)

	metrics := observability.NewMockMetricsRegistry()
	sender := NewSender(time.Second, "", metrics)
	sender.retryDelay = 10 * time.Millisecond
	cfg := &models.PushNotificationConfig{URL: srv.URL}
	if err := sender.Send(context.Background(), WebhookKindTask, cfg, map[string]string{}); err != nil {
		t.Fatalf("Send after one failure: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("successful deliveries = %d, want 1", rec.count())
	}
	if got := metrics.WebhookCount(WebhookKindTask, "ok"); got != 1 {
		t.Errorf("ok deliveries counted = %d, want 1", got)
	}

	// Two consecutive failures exhaust the retry budget.
	rec.failNext(2)
	if err := sender.Send(context.Background(), WebhookKindTask, cfg, map[string]string{}); err == nil {
		t.Error("Send succeeded with both attempts failing")
	}
	if got := metrics.WebhookCount(WebhookKindTask, "error"); got != 1 {
		t.Errorf("terminal failures counted = %d, want 1", got)
	}
}

func TestRewriteLocalhost(t *testing.T) {
	sender := NewSender(time.Second, "host.docker.internal", observability.NewNoOpRegistry())

	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:8888/webhook", "http://host.docker.internal:8888/webhook"},
		{"http://127.0.0.1/cb", "http://host.docker.internal/cb"},
		{"https://buyer.example.com/cb", "https://buyer.example.com/cb"},
		{"http://localhost.example.com/cb", "http://localhost.example.com/cb"},
	}
	for _, tt := range cases {
		if got := sender.rewriteLocalhost(tt.in); got != tt.want {
			t.Errorf("rewrite(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	bare := NewSender(time.Second, "", observability.NewNoOpRegistry())
	if got := bare.rewriteLocalhost("http://localhost:8888/webhook"); got != "http://localhost:8888/webhook" {
		t.Errorf("rewrite disabled but got %q", got)
	}
}
