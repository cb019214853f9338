// Package api is the HTTP surface of the sales agent: the A2A JSON-RPC
// endpoint, agent card discovery, health and debug endpoints, and the
// management API operators use to administer tenants, principals and the
// product catalog.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/config"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/middleware"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/skills"
	"github.com/toller892/adcp-salesagent/internal/tasks"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger   *zap.Logger
	Store    models.Store
	Skills   *skills.Registry
	Tasks    *tasks.Service
	Resolver *auth.Resolver
	Auth     *auth.Authenticator
	Adapters *adapters.Registry
	Redis    *db.RedisStore
	// Postgres is nil when the store is backed by memory, as in tests and
	// the stdio MCP binary. Debug and admin pool endpoints degrade then.
	Postgres *db.Postgres
	Metrics  observability.MetricsRegistry
	Config   config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store models.Store, registry *skills.Registry, taskSvc *tasks.Service, resolver *auth.Resolver, authenticator *auth.Authenticator, adapterReg *adapters.Registry, redis *db.RedisStore, pg *db.Postgres, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:   logger,
		Store:    store,
		Skills:   registry,
		Tasks:    taskSvc,
		Resolver: resolver,
		Auth:     authenticator,
		Adapters: adapterReg,
		Redis:    redis,
		Postgres: pg,
		Metrics:  metrics,
		Config:   cfg,
	}
}

// Routes wires every endpoint onto a router. Both /a2a and /a2a/ are
// registered explicitly; a redirect would drop the POST body.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithRequestLogger(s.Logger))

	r.HandleFunc("/a2a", s.A2AHandler).Methods("POST")
	r.HandleFunc("/a2a/", s.A2AHandler).Methods("POST")

	r.HandleFunc("/.well-known/agent-card.json", s.AgentCardHandler).Methods("GET")
	r.HandleFunc("/.well-known/agent.json", s.AgentCardHandler).Methods("GET")
	r.HandleFunc("/agent.json", s.AgentCardHandler).Methods("GET")

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/debug/tenant", s.DebugTenantHandler).Methods("GET")
	r.HandleFunc("/debug/db-state", s.DBStateHandler).Methods("GET")
	r.HandleFunc("/admin/reset-db-pool", s.ResetDBPoolHandler).Methods("POST")
	r.HandleFunc("/admin/tasks/{task_id}/approve", s.ApproveTaskHandler).Methods("POST")
	r.HandleFunc("/admin/tasks/{task_id}/reject", s.RejectTaskHandler).Methods("POST")

	mgmt := r.PathPrefix("/api/v1").Subrouter()
	mgmt.HandleFunc("/tenants", s.ListTenants).Methods("GET")
	mgmt.HandleFunc("/tenants", s.CreateTenant).Methods("POST")
	mgmt.HandleFunc("/tenants/{tenant_id}", s.GetTenantHandler).Methods("GET")
	mgmt.HandleFunc("/tenants/{tenant_id}", s.UpdateTenantHandler).Methods("PUT")
	mgmt.HandleFunc("/tenants/{tenant_id}", s.DeleteTenantHandler).Methods("DELETE")

	mgmt.HandleFunc("/tenants/{tenant_id}/principals", s.ListPrincipalsHandler).Methods("GET")
	mgmt.HandleFunc("/tenants/{tenant_id}/principals", s.CreatePrincipalHandler).Methods("POST")
	mgmt.HandleFunc("/tenants/{tenant_id}/principals/{principal_id}", s.UpdatePrincipalHandler).Methods("PUT")
	mgmt.HandleFunc("/tenants/{tenant_id}/principals/{principal_id}", s.DeletePrincipalHandler).Methods("DELETE")

	mgmt.HandleFunc("/tenants/{tenant_id}/products", s.ListProductsHandler).Methods("GET")
	mgmt.HandleFunc("/tenants/{tenant_id}/products", s.CreateProductHandler).Methods("POST")
	mgmt.HandleFunc("/tenants/{tenant_id}/products/{product_id}", s.UpdateProductHandler).Methods("PUT")
	mgmt.HandleFunc("/tenants/{tenant_id}/products/{product_id}", s.DeleteProductHandler).Methods("DELETE")

	mgmt.HandleFunc("/tenants/{tenant_id}/profiles", s.ListProfilesHandler).Methods("GET")
	mgmt.HandleFunc("/tenants/{tenant_id}/profiles", s.CreateProfileHandler).Methods("POST")
	mgmt.HandleFunc("/tenants/{tenant_id}/profiles/{profile_id}", s.UpdateProfileHandler).Methods("PUT")

	mgmt.HandleFunc("/tenants/{tenant_id}/tasks", s.ListTasksHandler).Methods("GET")

	return r
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
