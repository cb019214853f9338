package auth

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/toller892/adcp-salesagent/internal/models"
)

// reservedLabels are host labels that never name a tenant.
var reservedLabels = map[string]bool{
	"localhost": true,
	"www":       true,
	"admin":     true,
}

// Resolver decides which tenant a request targets before authentication.
type Resolver struct {
	store    models.Store
	baseHost string
}

// NewResolver creates a resolver. baseHost is the platform's apex host;
// requests addressed to it directly carry no subdomain.
func NewResolver(store models.Store, baseHost string) *Resolver {
	return &Resolver{store: store, baseHost: stripPort(baseHost)}
}

// Resolution reports how a tenant was detected, for the debug endpoint.
type Resolution struct {
	Tenant *models.Tenant `json:"tenant,omitempty"`
	// Source is which rule matched: "subdomain", "host_virtual_host",
	// "tenant_header_subdomain", "tenant_header_id" or "apx_virtual_host".
	// Empty when no tenant was found.
	Source string `json:"source,omitempty"`
	// Subdomain is the label extracted from Host, even when it matched
	// nothing.
	Subdomain string `json:"subdomain,omitempty"`
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// Subdomain extracts the candidate tenant label from a host. Reserved
// labels, bare hostnames, IP literals and the platform apex yield "".
func Subdomain(host, baseHost string) string {
	host = stripPort(host)
	if host == "" || host == baseHost || net.ParseIP(host) != nil {
		return ""
	}
	label, rest, ok := strings.Cut(host, ".")
	if !ok || rest == "" {
		return ""
	}
	if reservedLabels[label] {
		return ""
	}
	// With a configured apex, only direct children of it count.
	if baseHost != "" && rest != baseHost {
		return ""
	}
	return label
}

// lookupActive treats soft-deleted tenants as absent.
func lookupActive(t *models.Tenant, err error) (*models.Tenant, error) {
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, models.ErrNotFound
	}
	return t, nil
}

// Resolve applies the header precedence: Host subdomain, then
// x-adcp-tenant, then Apx-Incoming-Host. A Resolution with a nil Tenant is
// not an error; the request may still authenticate via global token lookup.
func (r *Resolver) Resolve(ctx context.Context, h Headers) (Resolution, error) {
	res := Resolution{Subdomain: Subdomain(h.Host, r.baseHost)}

	if res.Subdomain != "" {
		t, err := lookupActive(r.store.GetTenantBySubdomain(ctx, res.Subdomain))
		if err == nil {
			res.Tenant, res.Source = t, "subdomain"
			return res, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return res, err
		}
		t, err = lookupActive(r.store.GetTenantByVirtualHost(ctx, stripPort(h.Host)))
		if err == nil {
			res.Tenant, res.Source = t, "host_virtual_host"
			return res, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return res, err
		}
	}

	if v := strings.TrimSpace(h.Get(HeaderTenant)); v != "" {
		t, err := lookupActive(r.store.GetTenantBySubdomain(ctx, v))
		if err == nil {
			res.Tenant, res.Source = t, "tenant_header_subdomain"
			return res, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return res, err
		}
		t, err = lookupActive(r.store.GetTenant(ctx, v))
		if err == nil {
			res.Tenant, res.Source = t, "tenant_header_id"
			return res, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return res, err
		}
	}

	if v := strings.TrimSpace(h.Get(HeaderIncomingHost)); v != "" {
		t, err := lookupActive(r.store.GetTenantByVirtualHost(ctx, stripPort(v)))
		if err == nil {
			res.Tenant, res.Source = t, "apx_virtual_host"
			return res, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return res, err
		}
	}

	return res, nil
}
