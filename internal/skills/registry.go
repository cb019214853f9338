package skills

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/ratelimit"
)

// Registry holds the registered skills and runs the dispatch pipeline:
// discovery gate, per-principal rate limit, parameter normalization, handler
// invocation, metrics.
type Registry struct {
	skills  map[string]Skill
	order   []string
	limiter *ratelimit.PrincipalLimiter
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. limiter may be nil when rate
// limiting is disabled.
func NewRegistry(limiter *ratelimit.PrincipalLimiter, metrics observability.MetricsRegistry, logger *zap.Logger) *Registry {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{
		skills:  make(map[string]Skill),
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Register adds a skill. Re-registering a name replaces the previous entry.
func (r *Registry) Register(s Skill) {
	if _, exists := r.skills[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.skills[s.Name()] = s
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (Skill, bool) {
	s, ok := r.skills[name]
	return s, ok
}

// Names lists registered skills in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Dispatch runs one skill invocation end to end. The discovery allow-list is
// enforced here regardless of what the skill reports, so a miswired skill
// can never open an authenticated operation to anonymous callers.
func (r *Registry) Dispatch(ctx context.Context, tc *ToolContext, name string, params json.RawMessage) (Response, *adcp.TransportError) {
	skill, ok := r.skills[name]
	if !ok {
		r.metrics.IncrementSkillRequests(name, tc.Transport, "unknown_skill")
		return nil, adcp.MethodNotFoundf("unknown skill %q", name)
	}

	if tc.Principal == nil && (skill.RequiresAuth() || !adcp.IsDiscoverySkill(name)) {
		r.metrics.IncrementSkillRequests(name, tc.Transport, "unauthorized")
		return nil, adcp.MissingAuth()
	}

	if r.limiter != nil && !r.limiter.Allow(tc.PrincipalID()) {
		r.metrics.IncrementSkillRequests(name, tc.Transport, "rate_limited")
		return nil, adcp.Unavailable("rate limit exceeded, retry later")
	}

	normalized, err := Normalize(name, params)
	if err != nil {
		r.metrics.IncrementSkillRequests(name, tc.Transport, "invalid_params")
		return nil, adcp.InvalidParamsf("%s: %v", name, err)
	}

	tc.ToolName = name
	if tc.Logger == nil {
		tc.Logger = r.logger
	}
	tc.Logger = tc.Logger.With(
		zap.String("skill", name),
		zap.String("tenant_id", tc.TenantID()),
		zap.String("principal_id", tc.PrincipalID()),
	)

	start := time.Now()
	resp, terr := skill.Execute(ctx, tc, normalized)
	r.metrics.RecordSkillLatency(name, tc.Transport, time.Since(start))

	if terr != nil {
		r.metrics.IncrementSkillRequests(name, tc.Transport, string(terr.Kind))
		tc.Logger.Warn("Skill failed",
			zap.String("kind", string(terr.Kind)),
			zap.String("message", terr.Message))
		return nil, terr
	}
	r.metrics.IncrementSkillRequests(name, tc.Transport, "ok")
	// Success logs are sampled; one line per call is too hot for production.
	// Failures above always log.
	if observability.ShouldSample(observability.GetSamplingRate()) {
		tc.Logger.Info("Skill executed", zap.Duration("duration", time.Since(start)))
	}
	return resp, nil
}
