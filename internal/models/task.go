package models

import (
	"encoding/json"
	"time"
)

// Task states, aligned with the A2A lifecycle.
const (
	TaskStatusSubmitted     = "submitted"
	TaskStatusWorking       = "working"
	TaskStatusInputRequired = "input-required"
	TaskStatusCompleted     = "completed"
	TaskStatusFailed        = "failed"
	TaskStatusCanceled      = "canceled"
)

// TaskStatusTerminal reports whether a state is final. Terminal tasks never
// transition again and their webhooks carry the full result.
func TaskStatusTerminal(s string) bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

// Task records one skill invocation. Synchronous skills complete within the
// request; approval-gated operations persist in submitted until a human
// acts. The protocol-level Task returned to A2A callers is derived from
// this row.
type Task struct {
	TenantID    string `json:"tenant_id"`
	TaskID      string `json:"task_id"`
	ContextID   string `json:"context_id"`
	PrincipalID string `json:"principal_id"`
	Skill       string `json:"skill"`
	Status      string `json:"status"`
	// Transport records which surface created the task, "a2a" or "mcp".
	Transport string          `json:"transport,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	// Result holds the skill response payload once the task is terminal.
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	// PushConfig is the per-task webhook subscription supplied at send time
	// via configuration.pushNotificationConfig.
	PushConfig *PushNotificationConfig `json:"push_config,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// Workflow step types and statuses.
const (
	StepTypeApproval = "approval"

	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
)

// Comment is a typed workflow annotation. Stored as a JSONB list on the
// step; free-form strings are rejected at validation.
type Comment struct {
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// ObjectMapping links a workflow step to the domain object it gates.
type ObjectMapping struct {
	ObjectType string `json:"object_type"`
	ObjectID   string `json:"object_id"`
}

// WorkflowStep is a human action attached to a task, such as the manual
// review of a media buy.
type WorkflowStep struct {
	TenantID  string          `json:"tenant_id"`
	StepID    string          `json:"step_id"`
	TaskID    string          `json:"task_id"`
	StepType  string          `json:"step_type"`
	Status    string          `json:"status"`
	Comments  []Comment       `json:"comments,omitempty"`
	Mappings  []ObjectMapping `json:"object_mappings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Context groups the tasks of one conversation. The id is minted on first
// contact and echoed back so buyers can thread follow-ups.
type Context struct {
	TenantID       string    `json:"tenant_id"`
	ContextID      string    `json:"context_id"`
	PrincipalID    string    `json:"principal_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// PushNotificationConfig is a webhook subscription for task updates,
// following the A2A push notification shape.
type PushNotificationConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id,omitempty"`
	PrincipalID string `json:"principal_id,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	URL         string `json:"url"`
	// Token is the buyer's validation token. It is echoed on deliveries and
	// keys the payload signature.
	Token string `json:"token,omitempty"`
	// AuthSchemes and Credentials follow the A2A authentication info shape;
	// the first scheme is applied with the stored credentials.
	AuthSchemes []string  `json:"auth_schemes,omitempty"`
	Credentials string    `json:"credentials,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
