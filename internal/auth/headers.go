package auth

import (
	"net/http"
	"strings"
)

// Header names the agent inspects. x-adcp-auth survives for MCP clients
// that predate bearer support.
const (
	HeaderAuthorization = "Authorization"
	HeaderAuthToken     = "x-adcp-auth"
	HeaderTenant        = "x-adcp-tenant"
	HeaderIncomingHost  = "Apx-Incoming-Host"
)

// Headers carries the request metadata auth needs, with case-insensitive
// lookup. HTTP transports build one from the request; the stdio MCP binary
// builds one from environment configuration.
type Headers struct {
	Host   string
	values map[string]string
}

// NewHeaders builds Headers from a host and key-value pairs.
func NewHeaders(host string, kv map[string]string) Headers {
	values := make(map[string]string, len(kv))
	for k, v := range kv {
		values[strings.ToLower(k)] = v
	}
	return Headers{Host: host, values: values}
}

// FromHTTPRequest captures the host and headers of an incoming request.
func FromHTTPRequest(r *http.Request) Headers {
	values := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			values[strings.ToLower(k)] = v[0]
		}
	}
	return Headers{Host: r.Host, values: values}
}

// Get returns a header value by case-insensitive name.
func (h Headers) Get(name string) string {
	return h.values[strings.ToLower(name)]
}

// BearerToken extracts the credential, preferring the Authorization header
// over x-adcp-auth when both are present.
func BearerToken(h Headers) string {
	if v := h.Get(HeaderAuthorization); v != "" {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return strings.TrimSpace(h.Get(HeaderAuthToken))
}
