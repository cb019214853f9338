package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

// Identity is the authenticated request context handed to the dispatcher.
// Principal is nil only for discovery skills.
type Identity struct {
	Tenant    *models.Tenant
	Principal *models.Principal
}

// Authenticator turns bearer tokens into principals. Lookup is
// tenant-scoped whenever the resolver found a tenant, so a token from
// another tenant is rejected rather than silently accepted.
type Authenticator struct {
	store   models.Store
	metrics observability.MetricsRegistry
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(store models.Store, metrics observability.MetricsRegistry) *Authenticator {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Authenticator{store: store, metrics: metrics}
}

// tokenPrefix keeps error messages diagnosable without echoing the full
// credential back.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

// Authenticate resolves the bearer token carried in h. When tenant is nil
// the token is looked up globally and the owning tenant is loaded, which is
// the only way a tenantless request may proceed.
func (a *Authenticator) Authenticate(ctx context.Context, h Headers, tenant *models.Tenant) (*Identity, error) {
	tok := BearerToken(h)
	if tok == "" {
		a.metrics.IncrementAuthFailures("missing_token")
		return nil, adcp.MissingAuth()
	}

	if tenant != nil {
		principal, err := a.store.GetPrincipalByToken(ctx, tenant.TenantID, tok)
		if err == nil {
			return &Identity{Tenant: tenant, Principal: principal}, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("token lookup: %w", err)
		}
		// Distinguish a foreign token from garbage for the error message,
		// but reject both.
		if _, gerr := a.store.FindPrincipalByToken(ctx, tok); gerr == nil {
			a.metrics.IncrementAuthFailures("wrong_tenant")
			return nil, adcp.InvalidAuth(fmt.Sprintf(
				"token %s is not valid for tenant %q", tokenPrefix(tok), tenant.TenantID))
		}
		a.metrics.IncrementAuthFailures("unknown_token")
		return nil, adcp.InvalidAuth(fmt.Sprintf(
			"unknown token %s for tenant %q", tokenPrefix(tok), tenant.TenantID))
	}

	principal, err := a.store.FindPrincipalByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			a.metrics.IncrementAuthFailures("unknown_token")
			return nil, adcp.InvalidAuth(fmt.Sprintf("unknown token %s", tokenPrefix(tok)))
		}
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	owner, err := a.store.GetTenant(ctx, principal.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", principal.TenantID, err)
	}
	if !owner.IsActive {
		a.metrics.IncrementAuthFailures("inactive_tenant")
		return nil, adcp.InvalidAuth(fmt.Sprintf(
			"token %s belongs to a deactivated tenant", tokenPrefix(tok)))
	}
	return &Identity{Tenant: owner, Principal: principal}, nil
}
