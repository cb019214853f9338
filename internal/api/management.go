package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/middleware"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/skills"
)

// The management API administers tenants, principals and the catalog. It is
// operator-facing: deployments front it with their own access control, the
// same way the debug endpoints are gated.

// ===== Tenants =====

func (s *Server) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.Store.ListTenants(r.Context())
	if err != nil {
		s.Logger.Error("list tenants", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tenants)
}

func (s *Server) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var t models.Tenant
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if t.Name == "" || t.Subdomain == "" {
		http.Error(w, "tenant requires name and subdomain", http.StatusBadRequest)
		return
	}
	if t.TenantID == "" {
		t.TenantID = "tenant_" + uuid.NewString()[:8]
	}
	if t.AdServer == "" {
		t.AdServer = models.AdServerMock
	}
	t.IsActive = true
	if err := s.Store.InsertTenant(r.Context(), &t); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			http.Error(w, "tenant id or subdomain already in use", http.StatusConflict)
			return
		}
		s.Logger.Error("insert tenant", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	middleware.LoggerFromRequest(r, s.Logger).Info("Tenant created",
		zap.String("tenant_id", t.TenantID),
		zap.String("subdomain", t.Subdomain))
	writeJSONStatus(w, http.StatusCreated, t)
}

func (s *Server) GetTenantHandler(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTenant(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("get tenant", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, t)
}

func (s *Server) UpdateTenantHandler(w http.ResponseWriter, r *http.Request) {
	var t models.Tenant
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	t.TenantID = mux.Vars(r)["tenant_id"]
	if err := s.Store.UpdateTenant(r.Context(), t); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("update tenant", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, t)
}

// DeleteTenantHandler retires a tenant. A tenant that owns media buys is
// never removed, only deactivated: the row keeps the booking history and the
// resolver stops routing to it.
func (s *Server) DeleteTenantHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := mux.Vars(r)["tenant_id"]
	tenant, err := s.Store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("get tenant", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	buys, err := s.Store.ListMediaBuys(ctx, tenantID)
	if err != nil {
		s.Logger.Error("list media buys", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(buys) > 0 {
		tenant.IsActive = false
		if err := s.Store.UpdateTenant(ctx, *tenant); err != nil {
			s.Logger.Error("deactivate tenant", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		middleware.LoggerFromRequest(r, s.Logger).Info("Tenant deactivated",
			zap.String("tenant_id", tenantID),
			zap.Int("media_buys", len(buys)))
		writeJSON(w, map[string]any{
			"tenant_id":  tenantID,
			"status":     "deactivated",
			"media_buys": len(buys),
		})
		return
	}
	if err := s.Store.DeleteTenant(ctx, tenantID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("delete tenant", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== Principals =====

func (s *Server) ListPrincipalsHandler(w http.ResponseWriter, r *http.Request) {
	principals, err := s.Store.ListPrincipals(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		s.Logger.Error("list principals", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, principals)
}

func (s *Server) CreatePrincipalHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Principal
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Name == "" {
		http.Error(w, "principal requires a name", http.StatusBadRequest)
		return
	}
	p.TenantID = mux.Vars(r)["tenant_id"]
	if p.PrincipalID == "" {
		p.PrincipalID = "prn_" + uuid.NewString()[:8]
	}
	if p.AccessToken == "" {
		p.AccessToken = uuid.NewString()
	}
	if len(p.PlatformMappings) == 0 {
		http.Error(w, "principal requires at least one platform mapping", http.StatusBadRequest)
		return
	}
	if err := s.Store.InsertPrincipal(r.Context(), &p); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			http.Error(w, "principal id or token already in use", http.StatusConflict)
			return
		}
		s.Logger.Error("insert principal", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	middleware.LoggerFromRequest(r, s.Logger).Info("Principal created",
		zap.String("tenant_id", p.TenantID),
		zap.String("principal_id", p.PrincipalID))
	writeJSONStatus(w, http.StatusCreated, p)
}

func (s *Server) UpdatePrincipalHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Principal
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	p.TenantID = vars["tenant_id"]
	p.PrincipalID = vars["principal_id"]
	if len(p.PlatformMappings) == 0 {
		http.Error(w, "principal requires at least one platform mapping", http.StatusBadRequest)
		return
	}
	if err := s.Store.UpdatePrincipal(r.Context(), p); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "principal not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("update principal", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

func (s *Server) DeletePrincipalHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Store.DeletePrincipal(r.Context(), vars["tenant_id"], vars["principal_id"]); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "principal not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("delete principal", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== Products =====

func (s *Server) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.ListProducts(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		s.Logger.Error("list products", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, products)
}

func (s *Server) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Name == "" || len(p.PricingOptions) == 0 {
		http.Error(w, "product requires name and at least one pricing option", http.StatusBadRequest)
		return
	}
	p.TenantID = mux.Vars(r)["tenant_id"]
	if p.ProductID == "" {
		p.ProductID = "prod_" + uuid.NewString()[:8]
	}
	if p.DeliveryType == "" {
		p.DeliveryType = adcp.DeliveryTypeNonGuaranteed
	}
	if err := s.Store.InsertProduct(r.Context(), &p); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			http.Error(w, "product id already in use", http.StatusConflict)
			return
		}
		s.Logger.Error("insert product", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

func (s *Server) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	p.TenantID = vars["tenant_id"]
	p.ProductID = vars["product_id"]
	if err := s.Store.UpdateProduct(r.Context(), p); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("update product", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

func (s *Server) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Store.DeleteProduct(r.Context(), vars["tenant_id"], vars["product_id"]); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("delete product", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== Inventory profiles =====

func (s *Server) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.Store.ListInventoryProfiles(r.Context(), mux.Vars(r)["tenant_id"])
	if err != nil {
		s.Logger.Error("list inventory profiles", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, profiles)
}

func (s *Server) CreateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var p models.InventoryProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Name == "" {
		http.Error(w, "profile requires a name", http.StatusBadRequest)
		return
	}
	p.TenantID = mux.Vars(r)["tenant_id"]
	if p.ProfileID == "" {
		p.ProfileID = "prof_" + uuid.NewString()[:8]
	}
	if err := s.Store.InsertInventoryProfile(r.Context(), &p); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			http.Error(w, "profile id already in use", http.StatusConflict)
			return
		}
		s.Logger.Error("insert inventory profile", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, p)
}

func (s *Server) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var p models.InventoryProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	p.TenantID = vars["tenant_id"]
	p.ProfileID = vars["profile_id"]
	if err := s.Store.UpdateInventoryProfile(r.Context(), p); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("update inventory profile", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

// ===== Review queue =====

// ListTasksHandler returns a tenant's tasks oldest first, so operators can
// find work awaiting review before calling approve or reject. An optional
// principal_id query narrows the listing to one buyer.
func (s *Server) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	tenantTasks, err := s.Store.ListTasks(r.Context(), mux.Vars(r)["tenant_id"], r.URL.Query().Get("principal_id"))
	if err != nil {
		s.Logger.Error("list tasks", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tenantTasks)
}

// reviewBody is the optional operator note on approve and reject calls.
type reviewBody struct {
	User    string `json:"user"`
	Comment string `json:"comment"`
}

// decodeReviewBody reads the optional note. Comments are stored with the
// typed {user, timestamp, text} shape, so an unnamed reviewer gets the
// generic operator identity.
func decodeReviewBody(r *http.Request) reviewBody {
	var body reviewBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.User == "" {
		body.User = "operator"
	}
	return body
}

// ApproveTaskHandler releases a review-gated task: its pending approval
// steps flip to approved, the gated media buys provision in the ad server,
// and the task completes, which fires the buyer's webhook.
func (s *Server) ApproveTaskHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["task_id"]
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id query parameter required", http.StatusBadRequest)
		return
	}
	body := decodeReviewBody(r)

	tenant, err := s.Store.GetTenant(ctx, tenantID)
	if err != nil {
		http.Error(w, "tenant not found", http.StatusNotFound)
		return
	}
	task, err := s.Store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if task.Status != models.TaskStatusSubmitted {
		http.Error(w, "task is not awaiting review", http.StatusConflict)
		return
	}

	steps, err := s.Store.ListWorkflowSteps(ctx, tenantID, taskID)
	if err != nil {
		s.Logger.Error("list workflow steps", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger := middleware.LoggerFromRequest(r, s.Logger)
	var provisioned []map[string]any
	for _, step := range steps {
		if step.StepType != models.StepTypeApproval || step.Status != models.StepStatusPending {
			continue
		}
		for _, m := range step.Mappings {
			if m.ObjectType != "media_buy" {
				continue
			}
			buy, err := s.Store.GetMediaBuy(ctx, tenantID, m.ObjectID)
			if err != nil {
				logger.Error("approval step references missing media buy",
					zap.String("step_id", step.StepID),
					zap.String("media_buy_id", m.ObjectID))
				http.Error(w, "gated media buy not found", http.StatusInternalServerError)
				return
			}
			result, err := skills.ProvisionMediaBuy(ctx, s.Store, s.Adapters, tenant, buy)
			if err != nil {
				logger.Error("provision approved buy", zap.Error(err))
				http.Error(w, "ad server provisioning failed: "+err.Error(), http.StatusBadGateway)
				return
			}
			provisioned = append(provisioned, map[string]any{
				"media_buy_id": buy.MediaBuyID,
				"status":       buy.Status,
				"order_id":     result.OrderID,
			})
		}
		step.Status = models.StepStatusApproved
		step.UpdatedAt = time.Now().UTC()
		if body.Comment != "" {
			step.Comments = append(step.Comments, models.Comment{
				User:      body.User,
				Timestamp: step.UpdatedAt,
				Text:      body.Comment,
			})
		}
		if err := s.Store.UpdateWorkflowStep(ctx, step); err != nil {
			logger.Warn("Approval step not persisted", zap.Error(err), zap.String("step_id", step.StepID))
		}
	}

	// Fold the final statuses into the stored result so the completion
	// webhook carries the provisioned state, not the parked one.
	var result map[string]any
	if len(task.Result) > 0 {
		_ = json.Unmarshal(task.Result, &result)
	}
	if result == nil {
		result = map[string]any{}
	}
	if len(provisioned) == 1 {
		result["status"] = provisioned[0]["status"]
	}
	result["approval"] = map[string]any{"approved_by": body.User, "media_buys": provisioned}
	raw, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "encode result", http.StatusInternalServerError)
		return
	}
	if err := s.Tasks.Complete(ctx, task, raw); err != nil {
		s.Logger.Error("complete approved task", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"task_id":    task.TaskID,
		"status":     task.Status,
		"media_buys": provisioned,
	})
}

// RejectTaskHandler declines a review-gated task. Gated buys move to
// rejected and the failure webhook carries the operator's reason.
func (s *Server) RejectTaskHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["task_id"]
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id query parameter required", http.StatusBadRequest)
		return
	}
	body := decodeReviewBody(r)

	task, err := s.Store.GetTask(ctx, tenantID, taskID)
	if err != nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if task.Status != models.TaskStatusSubmitted {
		http.Error(w, "task is not awaiting review", http.StatusConflict)
		return
	}

	steps, err := s.Store.ListWorkflowSteps(ctx, tenantID, taskID)
	if err != nil {
		s.Logger.Error("list workflow steps", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	logger := middleware.LoggerFromRequest(r, s.Logger)
	for _, step := range steps {
		if step.StepType != models.StepTypeApproval || step.Status != models.StepStatusPending {
			continue
		}
		for _, m := range step.Mappings {
			if m.ObjectType != "media_buy" {
				continue
			}
			buy, err := s.Store.GetMediaBuy(ctx, tenantID, m.ObjectID)
			if err != nil {
				continue
			}
			buy.Status = adcp.StatusRejected
			buy.UpdatedAt = time.Now().UTC()
			if err := s.Store.UpdateMediaBuy(ctx, *buy); err != nil {
				logger.Warn("Rejected buy not persisted", zap.Error(err), zap.String("media_buy_id", buy.MediaBuyID))
			}
		}
		step.Status = models.StepStatusRejected
		step.UpdatedAt = time.Now().UTC()
		if body.Comment != "" {
			step.Comments = append(step.Comments, models.Comment{
				User:      body.User,
				Timestamp: step.UpdatedAt,
				Text:      body.Comment,
			})
		}
		if err := s.Store.UpdateWorkflowStep(ctx, step); err != nil {
			logger.Warn("Rejection step not persisted", zap.Error(err), zap.String("step_id", step.StepID))
		}
	}

	reason := "rejected by operator"
	if body.Comment != "" {
		reason += ": " + body.Comment
	}
	if err := s.Tasks.Fail(ctx, task, task.Result, reason); err != nil {
		s.Logger.Error("fail rejected task", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"task_id": task.TaskID,
		"status":  task.Status,
	})
}
