package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

// ErrNotCancelable is returned when a cancel targets a task that already
// reached a terminal state.
var ErrNotCancelable = errors.New("task is already terminal")

// Service runs the task state machine. Every transition is persisted and
// then pushed to the task's webhook subscribers; a push failure never fails
// the transition.
type Service struct {
	store   models.Store
	sender  *Sender
	metrics observability.MetricsRegistry
	now     func() time.Time
}

func NewService(store models.Store, sender *Sender, metrics observability.MetricsRegistry) *Service {
	return &Service{store: store, sender: sender, metrics: metrics, now: time.Now}
}

// Create opens a task in working state and threads it into its conversation
// context, minting a fresh context when the buyer did not supply one.
func (s *Service) Create(ctx context.Context, tenantID, principalID, contextID, skill, transport string, request json.RawMessage, push *models.PushNotificationConfig) (*models.Task, error) {
	now := s.now().UTC()
	if contextID == "" {
		contextID = "ctx_" + uuid.NewString()[:8]
	}
	if err := s.store.UpsertContext(ctx, &models.Context{
		TenantID:       tenantID,
		ContextID:      contextID,
		PrincipalID:    principalID,
		CreatedAt:      now,
		LastActivityAt: now,
	}); err != nil {
		return nil, fmt.Errorf("upsert context: %w", err)
	}

	t := &models.Task{
		TenantID:    tenantID,
		TaskID:      "task_" + uuid.NewString()[:8],
		ContextID:   contextID,
		PrincipalID: principalID,
		Skill:       skill,
		Status:      models.TaskStatusWorking,
		Transport:   transport,
		Request:     request,
		PushConfig:  push,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTask(ctx, t); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	s.metrics.IncrementTaskTransitions(skill, t.Status)
	return t, nil
}

// Complete finishes a task with its result payload.
func (s *Service) Complete(ctx context.Context, t *models.Task, result json.RawMessage) error {
	return s.transition(ctx, t, models.TaskStatusCompleted, result, "")
}

// Fail finishes a task with an error. Any partial result is kept so buyers
// see which parts succeeded before the failure.
func (s *Service) Fail(ctx context.Context, t *models.Task, result json.RawMessage, message string) error {
	return s.transition(ctx, t, models.TaskStatusFailed, result, message)
}

// Submit parks a task awaiting human approval. The state is not terminal;
// the management API later completes or fails it.
func (s *Service) Submit(ctx context.Context, t *models.Task, result json.RawMessage) error {
	return s.transition(ctx, t, models.TaskStatusSubmitted, result, "")
}

// Get loads a task scoped to the requesting principal. Tasks owned by other
// principals are reported as missing, not as forbidden.
func (s *Service) Get(ctx context.Context, tenantID, taskID, principalID string) (*models.Task, error) {
	t, err := s.store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if t.PrincipalID != principalID {
		return nil, models.ErrNotFound
	}
	return t, nil
}

// Cancel transitions a non-terminal task to canceled. Adapter operations
// already dispatched are not unwound.
func (s *Service) Cancel(ctx context.Context, tenantID, taskID, principalID string) (*models.Task, error) {
	t, err := s.Get(ctx, tenantID, taskID, principalID)
	if err != nil {
		return nil, err
	}
	if models.TaskStatusTerminal(t.Status) {
		return nil, ErrNotCancelable
	}
	if err := s.transition(ctx, t, models.TaskStatusCanceled, t.Result, ""); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) transition(ctx context.Context, t *models.Task, status string, result json.RawMessage, errMsg string) error {
	t.Status = status
	t.Result = result
	t.ErrorMessage = errMsg
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTask(ctx, *t); err != nil {
		return fmt.Errorf("update task %s: %w", t.TaskID, err)
	}
	s.metrics.IncrementTaskTransitions(t.Skill, status)
	s.Notify(ctx, t)
	return nil
}

// Notify pushes the task's current state to every subscribed endpoint: the
// config supplied at send time plus any registered through the push config
// API. Delivery is best-effort.
func (s *Service) Notify(ctx context.Context, t *models.Task) {
	configs := s.subscribers(ctx, t)
	if len(configs) == 0 {
		return
	}

	payload, err := BuildPayload(t)
	if err != nil {
		zap.L().Error("Webhook payload build failed",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
		return
	}
	for i := range configs {
		// Send logs and counts its own failures.
		_ = s.sender.Send(ctx, WebhookKindTask, &configs[i], payload)
	}
}

func (s *Service) subscribers(ctx context.Context, t *models.Task) []models.PushNotificationConfig {
	var configs []models.PushNotificationConfig
	seen := make(map[string]bool)
	if t.PushConfig != nil && t.PushConfig.URL != "" {
		configs = append(configs, *t.PushConfig)
		seen[t.PushConfig.URL] = true
	}
	stored, err := s.store.ListPushConfigs(ctx, t.TenantID, t.TaskID)
	if err != nil {
		zap.L().Warn("Push config lookup failed",
			zap.String("task_id", t.TaskID),
			zap.Error(err))
		return configs
	}
	for _, cfg := range stored {
		if seen[cfg.URL] {
			continue
		}
		seen[cfg.URL] = true
		configs = append(configs, cfg)
	}
	return configs
}
