// Package mcpserver exposes the AdCP skills as MCP tools. Every skill is
// one typed tool: the structured content carries the AdCP response and the
// text content carries its summary line. Transport problems (auth, unknown
// ids, rate limits) become tool errors; domain validation errors stay inside
// the response payload, where AdCP buyers expect them.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/skills"
)

// Server builds per-session MCP servers bound to the identity of whoever
// opened the session.
type Server struct {
	skills   *skills.Registry
	resolver *auth.Resolver
	authn    *auth.Authenticator
	name     string
	version  string
	logger   *zap.Logger
}

// New creates the MCP surface over an already-wired skill registry.
func New(registry *skills.Registry, resolver *auth.Resolver, authn *auth.Authenticator, name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	return &Server{
		skills:   registry,
		resolver: resolver,
		authn:    authn,
		name:     name,
		version:  version,
		logger:   logger.Named("mcp"),
	}
}

// Handler returns the SSE transport handler, mounted at /mcp. Each incoming
// session gets a server bound to that request's headers, so tenant routing
// and bearer auth work exactly as they do on the A2A endpoint.
func (s *Server) Handler() http.Handler {
	return mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s.ServerFor(auth.FromHTTPRequest(r))
	}, nil)
}

// ServerFor builds an MCP server whose tools run as the identity carried in
// h. The stdio binary calls this directly with environment-derived headers.
func (s *Server) ServerFor(h auth.Headers) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    s.name,
		Version: s.version,
	}, nil)
	b := &binding{host: s, headers: h}
	b.registerTools(srv)
	return srv
}

// binding ties one MCP session to the headers it arrived with. Identity is
// resolved per tool call, so a principal deactivated mid-session loses
// access on their next call.
type binding struct {
	host    *Server
	headers auth.Headers
}

func (b *binding) identify(ctx context.Context) (*models.Tenant, *models.Principal, *adcp.TransportError) {
	s := b.host
	res, err := s.resolver.Resolve(ctx, b.headers)
	if err != nil {
		return nil, nil, adcp.Internalf("resolve tenant: %v", err)
	}
	if auth.BearerToken(b.headers) == "" {
		if res.Tenant == nil {
			return nil, nil, adcp.InvalidParamsf(
				"no tenant resolved for host %q: use a tenant subdomain or the %s header", b.headers.Host, auth.HeaderTenant)
		}
		return res.Tenant, nil, nil
	}
	identity, err := s.authn.Authenticate(ctx, b.headers, res.Tenant)
	if err != nil {
		var terr *adcp.TransportError
		if errors.As(err, &terr) {
			return nil, nil, terr
		}
		return nil, nil, adcp.Internalf("authenticate: %v", err)
	}
	return identity.Tenant, identity.Principal, nil
}

// dispatch runs one skill with the session identity and shapes the MCP
// result.
func (b *binding) dispatch(ctx context.Context, name string, input any) (*mcp.CallToolResult, any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s input: %w", name, err)
	}
	tenant, principal, terr := b.identify(ctx)
	if terr != nil {
		return nil, nil, errors.New(terr.Message)
	}
	tc := &skills.ToolContext{
		Tenant:           tenant,
		Principal:        principal,
		Transport:        skills.TransportMCP,
		RequestTimestamp: time.Now().UTC(),
		Logger:           b.host.logger,
	}
	resp, terr := b.host.skills.Dispatch(ctx, tc, name, raw)
	if terr != nil {
		return nil, nil, errors.New(terr.Message)
	}
	return toolResult(resp), nil, nil
}

func toolResult(resp skills.Response) *mcp.CallToolResult {
	text := resp.Summary()
	if text == "" {
		if raw, err := json.Marshal(resp); err == nil {
			text = string(raw)
		}
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: resp,
	}
}
