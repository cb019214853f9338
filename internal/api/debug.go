package api

import (
	"net/http"

	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/middleware"
)

// DebugTenantHandler reports how the current request would be routed:
// which headers were seen and which resolution rule matched. It exists to
// debug multi-tenant routing in proxied deployments.
func (s *Server) DebugTenantHandler(w http.ResponseWriter, r *http.Request) {
	headers := auth.FromHTTPRequest(r)
	res, err := s.Resolver.Resolve(r.Context(), headers)
	if err != nil {
		http.Error(w, "resolve tenant: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"host": headers.Host,
		"headers": map[string]string{
			auth.HeaderTenant:       headers.Get(auth.HeaderTenant),
			auth.HeaderIncomingHost: headers.Get(auth.HeaderIncomingHost),
		},
		"resolution": res,
	})
}

// ResetDBPoolHandler drops idle connections and closes the circuit breaker.
// Operators hit this after a PgBouncer restart leaves the pool full of dead
// sockets.
func (s *Server) ResetDBPoolHandler(w http.ResponseWriter, r *http.Request) {
	if s.Postgres == nil {
		http.Error(w, "postgres not configured", http.StatusServiceUnavailable)
		return
	}
	s.Postgres.ResetPool()
	middleware.LoggerFromRequest(r, s.Logger).Info("Connection pool reset via admin endpoint")
	writeJSON(w, map[string]any{
		"status": "reset",
		"pool":   s.Postgres.Stats(),
	})
}

// DBStateHandler probes the database and reports pool visibility. A
// successful probe closes the breaker, so this doubles as the external
// health-reset operation.
func (s *Server) DBStateHandler(w http.ResponseWriter, r *http.Request) {
	if s.Postgres == nil {
		http.Error(w, "postgres not configured", http.StatusServiceUnavailable)
		return
	}
	err := s.Postgres.CheckHealth(r.Context())
	state := map[string]any{
		"healthy":   err == nil,
		"pgbouncer": s.Postgres.PgBouncer,
		"pool":      s.Postgres.Stats(),
	}
	if err != nil {
		state["error"] = err.Error()
	}
	s.Postgres.PublishPoolStats()
	writeJSON(w, state)
}
