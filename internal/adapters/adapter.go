// Package adapters hides ad-server specifics behind a uniform interface.
// Each tenant binds to one backend via tenant.ad_server; the registry hands
// out a configured adapter per tenant. Only the mock backend runs in-process.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

// CreateRequest carries everything a backend needs to provision an order.
type CreateRequest struct {
	Principal *models.Principal
	MediaBuy  *models.MediaBuy
	// ImplementationConfig maps package id to the placement configuration
	// resolved from the product and its inventory profile at buy time.
	ImplementationConfig map[string]json.RawMessage
}

// LineItem is one provisioned line in the backing ad server.
type LineItem struct {
	PackageID  string `json:"package_id"`
	LineItemID string `json:"line_item_id"`
	Status     string `json:"status"`
}

// CreateResult reports a provisioned order. Status is one of the adcp media
// buy statuses; pending_activation means the flight has not started yet.
type CreateResult struct {
	OrderID   string
	Status    string
	LineItems []LineItem
}

// UpdateRequest carries a buy with its updates already applied plus the ids
// of the packages that changed.
type UpdateRequest struct {
	Principal        *models.Principal
	MediaBuy         *models.MediaBuy
	AffectedPackages []string
}

type UpdateResult struct {
	Status             string
	AffectedPackages   []string
	ImplementationDate *time.Time
}

// DeliveryRequest bounds a delivery query to [Start, End).
type DeliveryRequest struct {
	MediaBuy *models.MediaBuy
	Start    time.Time
	End      time.Time
}

type DeliveryResult struct {
	Totals    adcp.DeliveryTotals
	ByPackage []adcp.PackageDelivery
}

// SyncRequest pushes creatives (and their package assignments) to the
// backend. Creative statuses arrive already policy-resolved; the backend may
// still reject individual creatives.
type SyncRequest struct {
	Principal   *models.Principal
	Creatives   []*models.Creative
	Assignments []*models.CreativeAssignment
}

// CreativeResult reports the backend outcome for one creative.
type CreativeResult struct {
	CreativeID string
	Status     string
	Errors     []string
}

// Adapter is the surface the skill handlers depend on. Implementations must
// be safe for concurrent use.
type Adapter interface {
	Name() string
	// ManualApprovalRequired reports whether the backend queues new orders
	// for human approval instead of provisioning them immediately.
	ManualApprovalRequired() bool
	CreateMediaBuy(ctx context.Context, req *CreateRequest) (*CreateResult, error)
	UpdateMediaBuy(ctx context.Context, req *UpdateRequest) (*UpdateResult, error)
	GetDelivery(ctx context.Context, req *DeliveryRequest) (*DeliveryResult, error)
	SyncCreatives(ctx context.Context, req *SyncRequest) ([]CreativeResult, error)
	// UpdatePerformanceIndex forwards buyer-reported indices. Backends
	// without native support return (false, nil).
	UpdatePerformanceIndex(ctx context.Context, mediaBuyID string, perf []adcp.PackagePerformance) (bool, error)
}

// NotConfiguredError reports an ad server that is known to the platform but
// has no in-process binding. GAM and Kevel integrations run out of process.
type NotConfiguredError struct {
	AdServer string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("ad server %q is not configured in this deployment", e.AdServer)
}

// Registry constructs and caches adapters per tenant. Mock adapters keep
// in-memory order state, so each tenant must always see the same instance.
type Registry struct {
	mu        sync.Mutex
	analytics analytics.AnalyticsService
	metrics   observability.MetricsRegistry
	mocks     map[string]*Mock
}

func NewRegistry(svc analytics.AnalyticsService, metrics observability.MetricsRegistry) *Registry {
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &Registry{
		analytics: svc,
		metrics:   metrics,
		mocks:     make(map[string]*Mock),
	}
}

// ForTenant resolves the tenant's configured backend. Unknown names and
// known-but-unbound backends both fail; the caller surfaces the failure as a
// domain error on the response.
func (r *Registry) ForTenant(tenant *models.Tenant) (Adapter, error) {
	switch tenant.AdServer {
	case models.AdServerMock, "":
		r.mu.Lock()
		defer r.mu.Unlock()
		m, ok := r.mocks[tenant.TenantID]
		if !ok {
			m = NewMock(tenant, r.analytics, r.metrics)
			r.mocks[tenant.TenantID] = m
		} else {
			m.Reconfigure(tenant)
		}
		return m, nil
	case models.AdServerGAM, models.AdServerKevel:
		return nil, &NotConfiguredError{AdServer: tenant.AdServer}
	default:
		return nil, fmt.Errorf("unknown ad server %q for tenant %s", tenant.AdServer, tenant.TenantID)
	}
}
