package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/token"
)

// Webhook kinds for metrics.
const (
	WebhookKindTask           = "task"
	WebhookKindDeliveryReport = "delivery_report"
)

// Sender posts webhook payloads to buyer endpoints. Delivery is
// at-least-once with a single retry; a failed delivery is recorded and
// dropped, it never propagates to the call that triggered it.
type Sender struct {
	client       *http.Client
	localRewrite string
	retryDelay   time.Duration
	metrics      observability.MetricsRegistry
}

// NewSender builds a sender with a bounded per-request timeout. localRewrite
// replaces localhost webhook hosts so a containerized agent can reach
// endpoints on the host machine; empty disables the rewrite.
func NewSender(timeout time.Duration, localRewrite string, metrics observability.MetricsRegistry) *Sender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sender{
		client:       &http.Client{Timeout: timeout},
		localRewrite: localRewrite,
		retryDelay:   2 * time.Second,
		metrics:      metrics,
	}
}

// Send delivers one payload to the configured endpoint. The request carries
// the buyer's validation token, an HMAC signature of the body keyed by that
// token, and the stored authentication scheme.
func (s *Sender) Send(ctx context.Context, kind string, cfg *models.PushNotificationConfig, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		s.metrics.IncrementWebhookDeliveries(kind, "error")
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	target := s.rewriteLocalhost(cfg.URL)
	start := time.Now()
	err = s.post(ctx, target, cfg, body)
	if err != nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(s.retryDelay):
			err = s.post(ctx, target, cfg, body)
		}
	}
	s.metrics.RecordWebhookLatency(time.Since(start))

	if err != nil {
		s.metrics.IncrementWebhookDeliveries(kind, "error")
		zap.L().Warn("Webhook delivery failed",
			zap.String("kind", kind),
			zap.String("url", target),
			zap.Error(err))
		return err
	}
	s.metrics.IncrementWebhookDeliveries(kind, "ok")
	return nil
}

func (s *Sender) post(ctx context.Context, target string, cfg *models.PushNotificationConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("X-A2A-Notification-Token", cfg.Token)
		req.Header.Set("X-ADCP-Signature", token.Sign([]byte(cfg.Token), body))
	}
	if len(cfg.AuthSchemes) > 0 && cfg.Credentials != "" {
		req.Header.Set("Authorization", cfg.AuthSchemes[0]+" "+cfg.Credentials)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}

// rewriteLocalhost swaps loopback hosts for the configured container-visible
// host. Buyer tooling in local development registers localhost URLs that the
// agent, running in a container, cannot reach directly.
func (s *Sender) rewriteLocalhost(raw string) string {
	if s.localRewrite == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(s.localRewrite, port)
	} else {
		u.Host = s.localRewrite
	}
	return u.String()
}
