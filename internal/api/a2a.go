package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/a2a"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/middleware"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/skills"
	"github.com/toller892/adcp-salesagent/internal/tasks"
)

// A2AHandler serves the JSON-RPC endpoint at /a2a. JSON-RPC errors always
// ride on HTTP 200; only undecodable envelopes get a protocol-level error
// response.
func (s *Server) A2AHandler(w http.ResponseWriter, r *http.Request) {
	var req a2a.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, a2a.NewErrorResponse(nil, adcp.CodeParse, fmt.Sprintf("parse request: %v", err)))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidRequest, "request must carry jsonrpc 2.0 and a method"))
		return
	}

	switch req.Method {
	case a2a.MethodMessageSend:
		s.handleMessageSend(w, r, &req, false)
	case a2a.MethodMessageStream:
		s.handleMessageSend(w, r, &req, true)
	case a2a.MethodTasksGet:
		s.handleTasksGet(w, r, &req)
	case a2a.MethodTasksCancel:
		s.handleTasksCancel(w, r, &req)
	case a2a.MethodPushConfigSet:
		s.handlePushConfigSet(w, r, &req)
	case a2a.MethodPushConfigGet:
		s.handlePushConfigGet(w, r, &req)
	case a2a.MethodPushConfigList:
		s.handlePushConfigList(w, r, &req)
	case a2a.MethodPushConfigDelete:
		s.handlePushConfigDelete(w, r, &req)
	default:
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

// identify resolves the tenant and, when a token is present, the caller's
// principal. A missing token is not an error here; the dispatcher rejects
// anonymous calls to non-discovery skills, and the error message then names
// the resolved tenant so routing problems are diagnosable.
func (s *Server) identify(ctx context.Context, h auth.Headers) (*models.Tenant, *models.Principal, *adcp.TransportError) {
	res, err := s.Resolver.Resolve(ctx, h)
	if err != nil {
		return nil, nil, adcp.Internalf("resolve tenant: %v", err)
	}
	if auth.BearerToken(h) == "" {
		if res.Tenant == nil {
			return nil, nil, adcp.InvalidParamsf(
				"no tenant resolved for host %q: use a tenant subdomain or the %s header", h.Host, auth.HeaderTenant)
		}
		return res.Tenant, nil, nil
	}
	identity, err := s.Auth.Authenticate(ctx, h, res.Tenant)
	if err != nil {
		var terr *adcp.TransportError
		if errors.As(err, &terr) {
			return nil, nil, terr
		}
		return nil, nil, adcp.Internalf("authenticate: %v", err)
	}
	return identity.Tenant, identity.Principal, nil
}

// invocation is one skill call extracted from a message.
type invocation struct {
	Skill  string
	Params json.RawMessage
}

// parseInvocations turns a message's parts into skill calls. Data parts
// carrying a skill name select explicit mode and suppress text routing;
// otherwise the concatenated text goes through the keyword router.
func parseInvocations(msg *a2a.Message) ([]invocation, error) {
	var explicit []invocation
	var text []string
	for _, part := range msg.Parts {
		switch part.Kind {
		case a2a.PartKindData:
			name, _ := part.Data["skill"].(string)
			if name == "" {
				continue
			}
			payload := make(map[string]any, len(part.Data))
			for k, v := range part.Data {
				if k != "skill" {
					payload[k] = v
				}
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("encode parameters of %s: %w", name, err)
			}
			explicit = append(explicit, invocation{Skill: name, Params: raw})
		case a2a.PartKindText:
			if strings.TrimSpace(part.Text) != "" {
				text = append(text, part.Text)
			}
		}
	}
	if len(explicit) > 0 {
		return explicit, nil
	}
	if len(text) == 0 {
		return nil, errors.New("message has no usable parts: send a data part with a skill name or a text part")
	}
	return []invocation{routeText(strings.Join(text, " "))}, nil
}

// routeText maps free text onto a skill. The tokenization is deliberately
// coarse: buyers wanting precise control send explicit data parts.
func routeText(text string) invocation {
	lower := strings.ToLower(text)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("create", "book ", "launch", "buy "):
		return invocation{Skill: adcp.SkillCreateMediaBuy, Params: json.RawMessage(`{}`)}
	case contains("propert", "target", "audience", "reach"):
		return invocation{Skill: adcp.SkillListAuthorizedProperties, Params: json.RawMessage(`{}`)}
	case contains("format", "creative spec", "asset"):
		return invocation{Skill: adcp.SkillListCreativeFormats, Params: json.RawMessage(`{}`)}
	default:
		// Product and pricing questions both resolve through the catalog;
		// the brief carries the buyer's words.
		brief, _ := json.Marshal(map[string]string{"brief": text})
		return invocation{Skill: adcp.SkillGetProducts, Params: brief}
	}
}

// dispatchOutcome is the result of one skill invocation within a message.
type dispatchOutcome struct {
	Skill    string
	Response skills.Response
	Err      *adcp.TransportError
}

func (s *Server) handleMessageSend(w http.ResponseWriter, r *http.Request, req *a2a.Request, stream bool) {
	ctx := r.Context()
	headers := auth.FromHTTPRequest(r)
	tenant, principal, terr := s.identify(ctx, headers)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}

	var p a2a.MessageSendParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, fmt.Sprintf("parse params: %v", err)))
		return
	}
	invocations, err := parseInvocations(&p.Message)
	if err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, err.Error()))
		return
	}

	var push *models.PushNotificationConfig
	if p.Configuration != nil && p.Configuration.PushNotificationConfig != nil {
		push = pushConfigFromWire(p.Configuration.PushNotificationConfig)
	}

	principalID := ""
	if principal != nil {
		principalID = principal.PrincipalID
	}
	task, err := s.Tasks.Create(ctx, tenant.TenantID, principalID, p.Message.ContextID,
		invocations[0].Skill, skills.TransportA2A, req.Params, push)
	if err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("create task: %v", err)))
		return
	}

	logger := middleware.LoggerFromRequest(r, s.Logger)
	outcomes := make([]dispatchOutcome, 0, len(invocations))
	for _, inv := range invocations {
		tc := &skills.ToolContext{
			ContextID:        task.ContextID,
			TaskID:           task.TaskID,
			Tenant:           tenant,
			Principal:        principal,
			Transport:        skills.TransportA2A,
			RequestTimestamp: time.Now().UTC(),
			Logger:           logger,
		}
		resp, derr := s.Skills.Dispatch(ctx, tc, inv.Skill, inv.Params)
		outcomes = append(outcomes, dispatchOutcome{Skill: inv.Skill, Response: resp, Err: derr})
	}

	view, rpcErr := s.concludeTask(ctx, task, outcomes)
	if rpcErr != nil {
		writeJSON(w, a2a.Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}
	if stream {
		writeEventStream(w, a2a.NewResponse(req.ID, view))
		return
	}
	writeJSON(w, a2a.NewResponse(req.ID, view))
}

// concludeTask transitions the task from its dispatch outcomes and builds
// the wire view. Submitted results park the task with no artifacts; a task
// fails only when every skill failed, and the first failure is surfaced as
// the JSON-RPC error.
func (s *Server) concludeTask(ctx context.Context, task *models.Task, outcomes []dispatchOutcome) (*a2a.Task, *a2a.Error) {
	failures := 0
	submitted := false
	var artifacts []a2a.Artifact
	for _, out := range outcomes {
		if out.Err != nil {
			failures++
			artifacts = append(artifacts, errorArtifact(out.Skill, out.Err))
			continue
		}
		if sub, ok := out.Response.(skills.Submittable); ok && sub.Submitted() {
			submitted = true
		}
		art, err := resultArtifact(out.Skill, out.Response)
		if err != nil {
			return nil, &a2a.Error{Code: adcp.CodeInternal, Message: fmt.Sprintf("encode %s response: %v", out.Skill, err)}
		}
		artifacts = append(artifacts, art)
	}

	result := resultPayload(outcomes)
	switch {
	case failures == len(outcomes):
		first := outcomes[0]
		if err := s.Tasks.Fail(ctx, task, result, first.Err.Message); err != nil {
			return nil, &a2a.Error{Code: adcp.CodeInternal, Message: fmt.Sprintf("record task failure: %v", err)}
		}
		return nil, &a2a.Error{Code: first.Err.JSONRPCCode(), Message: first.Err.Message}
	case submitted:
		if err := s.Tasks.Submit(ctx, task, result); err != nil {
			return nil, &a2a.Error{Code: adcp.CodeInternal, Message: fmt.Sprintf("record task submission: %v", err)}
		}
		artifacts = nil
	default:
		if err := s.Tasks.Complete(ctx, task, result); err != nil {
			return nil, &a2a.Error{Code: adcp.CodeInternal, Message: fmt.Sprintf("record task completion: %v", err)}
		}
	}

	ts := task.UpdatedAt
	return &a2a.Task{
		ID:        task.TaskID,
		ContextID: task.ContextID,
		Kind:      a2a.KindTask,
		Status:    a2a.TaskStatus{State: a2a.TaskState(task.Status), Timestamp: &ts},
		Artifacts: artifacts,
	}, nil
}

// resultPayload flattens the outcomes into the stored task result: the bare
// response for the single-skill case, a keyed results list otherwise.
func resultPayload(outcomes []dispatchOutcome) json.RawMessage {
	if len(outcomes) == 1 {
		if outcomes[0].Response == nil {
			return nil
		}
		raw, err := json.Marshal(outcomes[0].Response)
		if err != nil {
			return nil
		}
		return raw
	}
	list := make([]map[string]any, 0, len(outcomes))
	for _, out := range outcomes {
		entry := map[string]any{"skill": out.Skill}
		if out.Err != nil {
			entry["error"] = out.Err.Message
		} else {
			entry["result"] = out.Response
		}
		list = append(list, entry)
	}
	raw, err := json.Marshal(map[string]any{"results": list})
	if err != nil {
		return nil
	}
	return raw
}

func resultArtifact(skill string, resp skills.Response) (a2a.Artifact, error) {
	data, err := a2a.AsMap(resp)
	if err != nil {
		return a2a.Artifact{}, err
	}
	parts := make([]a2a.Part, 0, 2)
	if summary := resp.Summary(); summary != "" {
		parts = append(parts, a2a.TextPart(summary))
	}
	parts = append(parts, a2a.DataPart(data))
	return a2a.Artifact{
		ArtifactID: "artifact_" + uuid.NewString()[:8],
		Name:       skill + "_result",
		Parts:      parts,
	}, nil
}

func errorArtifact(skill string, terr *adcp.TransportError) a2a.Artifact {
	return a2a.Artifact{
		ArtifactID: "artifact_" + uuid.NewString()[:8],
		Name:       skill + "_error",
		Parts: []a2a.Part{a2a.DataPart(map[string]any{
			"error": map[string]any{"kind": string(terr.Kind), "message": terr.Message},
		})},
	}
}

// writeEventStream emits the response as a single server-sent event and
// closes. Buyers that requested streaming still get one well-formed frame.
func writeEventStream(w http.ResponseWriter, resp a2a.Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "encode event", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// authenticateOnly is identify for the task and push-config methods, which
// never run anonymously.
func (s *Server) authenticateOnly(ctx context.Context, r *http.Request) (*models.Tenant, *models.Principal, *adcp.TransportError) {
	tenant, principal, terr := s.identify(ctx, auth.FromHTTPRequest(r))
	if terr != nil {
		return nil, nil, terr
	}
	if principal == nil {
		return nil, nil, adcp.MissingAuth()
	}
	return tenant, principal, nil
}

func (s *Server) handleTasksGet(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	ctx := r.Context()
	tenant, principal, terr := s.authenticateOnly(ctx, r)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	var p a2a.TaskQueryParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, "params require a task id"))
		return
	}
	task, err := s.Tasks.Get(ctx, tenant.TenantID, p.ID, principal.PrincipalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeTaskNotFound, fmt.Sprintf("task %q not found", p.ID)))
			return
		}
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("load task: %v", err)))
		return
	}
	view, err := tasks.View(task)
	if err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("render task: %v", err)))
		return
	}
	// Message history is not persisted; historyLength is accepted but the
	// returned history is always empty.
	writeJSON(w, a2a.NewResponse(req.ID, view))
}

func (s *Server) handleTasksCancel(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	ctx := r.Context()
	tenant, principal, terr := s.authenticateOnly(ctx, r)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	var p a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, "params require a task id"))
		return
	}
	task, err := s.Tasks.Cancel(ctx, tenant.TenantID, p.ID, principal.PrincipalID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeTaskNotFound, fmt.Sprintf("task %q not found", p.ID)))
		case errors.Is(err, tasks.ErrNotCancelable):
			writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeNotCancelable, fmt.Sprintf("task %q is already terminal", p.ID)))
		default:
			writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("cancel task: %v", err)))
		}
		return
	}
	view, err := tasks.View(task)
	if err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("render task: %v", err)))
		return
	}
	writeJSON(w, a2a.NewResponse(req.ID, view))
}

func pushConfigFromWire(cfg *a2a.PushNotificationConfig) *models.PushNotificationConfig {
	out := &models.PushNotificationConfig{
		ID:    cfg.ID,
		URL:   cfg.URL,
		Token: cfg.Token,
	}
	if cfg.Authentication != nil {
		out.AuthSchemes = cfg.Authentication.Schemes
		out.Credentials = cfg.Authentication.Credentials
	}
	return out
}

func pushConfigToWire(cfg *models.PushNotificationConfig) a2a.TaskPushNotificationConfig {
	wire := a2a.PushNotificationConfig{
		ID:    cfg.ID,
		URL:   cfg.URL,
		Token: cfg.Token,
	}
	if len(cfg.AuthSchemes) > 0 || cfg.Credentials != "" {
		wire.Authentication = &a2a.AuthenticationInfo{
			Schemes:     cfg.AuthSchemes,
			Credentials: cfg.Credentials,
		}
	}
	return a2a.TaskPushNotificationConfig{TaskID: cfg.TaskID, PushNotificationConfig: wire}
}

// ownTask loads a task and hides other principals' tasks behind not-found.
func (s *Server) ownTask(ctx context.Context, tenant *models.Tenant, principal *models.Principal, taskID string) (*models.Task, *adcp.TransportError) {
	task, err := s.Tasks.Get(ctx, tenant.TenantID, taskID, principal.PrincipalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &adcp.TransportError{Kind: adcp.KindNotFound, Message: fmt.Sprintf("task %q not found", taskID)}
		}
		return nil, adcp.Internalf("load task: %v", err)
	}
	return task, nil
}

func (s *Server) handlePushConfigSet(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	ctx := r.Context()
	tenant, principal, terr := s.authenticateOnly(ctx, r)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	var p a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(req.Params, &p); err != nil || p.TaskID == "" || p.PushNotificationConfig.URL == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, "params require taskId and a config url"))
		return
	}
	if _, terr := s.ownTask(ctx, tenant, principal, p.TaskID); terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	cfg := pushConfigFromWire(&p.PushNotificationConfig)
	cfg.TenantID = tenant.TenantID
	cfg.PrincipalID = principal.PrincipalID
	cfg.TaskID = p.TaskID
	if cfg.ID == "" {
		cfg.ID = "pnc_" + uuid.NewString()[:8]
	}
	if err := s.Store.UpsertPushConfig(ctx, cfg); err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("store push config: %v", err)))
		return
	}
	middleware.LoggerFromRequest(r, s.Logger).Info("Push config stored",
		zap.String("task_id", p.TaskID),
		zap.String("config_id", cfg.ID))
	writeJSON(w, a2a.NewResponse(req.ID, pushConfigToWire(cfg)))
}

func (s *Server) handlePushConfigGet(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	ctx := r.Context()
	tenant, principal, terr := s.authenticateOnly(ctx, r)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	var p a2a.PushConfigGetParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, "params require a task id"))
		return
	}
	if _, terr := s.ownTask(ctx, tenant, principal, p.ID); terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	cfg, err := s.Store.GetPushConfig(ctx, tenant.TenantID, p.ID, p.PushNotificationConfigID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeTaskNotFound, "no push config for task"))
			return
		}
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("load push config: %v", err)))
		return
	}
	writeJSON(w, a2a.NewResponse(req.ID, pushConfigToWire(cfg)))
}

func (s *Server) handlePushConfigList(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	ctx := r.Context()
	tenant, principal, terr := s.authenticateOnly(ctx, r)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	var p a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, "params require a task id"))
		return
	}
	if _, terr := s.ownTask(ctx, tenant, principal, p.ID); terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	configs, err := s.Store.ListPushConfigs(ctx, tenant.TenantID, p.ID)
	if err != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("list push configs: %v", err)))
		return
	}
	out := make([]a2a.TaskPushNotificationConfig, 0, len(configs))
	for i := range configs {
		out = append(out, pushConfigToWire(&configs[i]))
	}
	writeJSON(w, a2a.NewResponse(req.ID, out))
}

func (s *Server) handlePushConfigDelete(w http.ResponseWriter, r *http.Request, req *a2a.Request) {
	ctx := r.Context()
	tenant, principal, terr := s.authenticateOnly(ctx, r)
	if terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	var p a2a.PushConfigGetParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInvalidParams, "params require a task id"))
		return
	}
	if _, terr := s.ownTask(ctx, tenant, principal, p.ID); terr != nil {
		writeJSON(w, a2a.NewErrorResponse(req.ID, terr.JSONRPCCode(), terr.Message))
		return
	}
	if err := s.Store.DeletePushConfig(ctx, tenant.TenantID, p.ID, p.PushNotificationConfigID); err != nil && !errors.Is(err, models.ErrNotFound) {
		writeJSON(w, a2a.NewErrorResponse(req.ID, adcp.CodeInternal, fmt.Sprintf("delete push config: %v", err)))
		return
	}
	writeJSON(w, a2a.NewResponse(req.ID, map[string]any{}))
}
