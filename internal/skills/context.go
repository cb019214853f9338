// Package skills implements the nine AdCP operations behind a single typed
// registry. Both transports call Dispatch with normalized parameters and a
// ToolContext; skills never see HTTP or JSON-RPC framing.
package skills

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// Transport labels for metrics and task rows.
const (
	TransportA2A = "a2a"
	TransportMCP = "mcp"
)

// ToolContext carries the identity and invocation metadata of one skill
// call. Principal is nil only for discovery skills.
type ToolContext struct {
	ContextID string
	// TaskID is minted by the transport before dispatch so skills can
	// attach workflow steps to the protocol task.
	TaskID           string
	Tenant           *models.Tenant
	Principal        *models.Principal
	ToolName         string
	Transport        string
	RequestTimestamp time.Time
	// TestingContext marks synthetic traffic; adapters may relax side
	// effects under it.
	TestingContext bool
	Metadata       map[string]any
	Logger         *zap.Logger
}

// TenantID returns the owning tenant id, empty when unresolved.
func (tc *ToolContext) TenantID() string {
	if tc.Tenant == nil {
		return ""
	}
	return tc.Tenant.TenantID
}

// PrincipalID returns the caller's principal id, empty for anonymous
// discovery calls.
func (tc *ToolContext) PrincipalID() string {
	if tc.Principal == nil {
		return ""
	}
	return tc.Principal.PrincipalID
}

// Now returns the request timestamp, falling back to the wall clock when the
// transport did not stamp one.
func (tc *ToolContext) Now() time.Time {
	if tc.RequestTimestamp.IsZero() {
		return time.Now().UTC()
	}
	return tc.RequestTimestamp
}

// Log returns the request-scoped logger, never nil.
func (tc *ToolContext) Log() *zap.Logger {
	if tc.Logger == nil {
		return zap.L()
	}
	return tc.Logger
}

// Response is implemented by every AdCP response payload. Summary is the
// human-readable line shown as MCP text content and A2A text parts.
type Response interface {
	Summary() string
}

// Submittable is implemented by responses that can end in a state awaiting
// human review. Transports shape the protocol task as submitted, with no
// artifacts, when Submitted reports true.
type Submittable interface {
	Submitted() bool
}

// Skill is one AdCP operation. Execute receives parameters already passed
// through Normalize; domain problems ride in the response's errors array and
// only invocation-level failures return a TransportError.
type Skill interface {
	Name() string
	RequiresAuth() bool
	Execute(ctx context.Context, tc *ToolContext, params json.RawMessage) (Response, *adcp.TransportError)
}

// storeError maps a persistence failure onto the transport taxonomy. A
// breaker-open failure keeps its own kind so callers can tell an outage
// from a bug.
func storeError(op string, err error) *adcp.TransportError {
	if errors.Is(err, db.ErrUnhealthy) {
		return adcp.DatabaseUnhealthy()
	}
	return adcp.Internalf("%s: %v", op, err)
}
