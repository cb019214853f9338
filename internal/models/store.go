package models

import (
	"context"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Store provides access to all sales state. The Postgres implementation in
// internal/db backs production; InMemorySalesStore backs tests and tooling.
// Every method that reads or writes tenant-owned rows takes the tenant id
// explicitly so cross-tenant access cannot happen by accident.
type Store interface {
	// Tenant resolution and management
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	GetTenantByVirtualHost(ctx context.Context, host string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	InsertTenant(ctx context.Context, t *Tenant) error
	UpdateTenant(ctx context.Context, t Tenant) error
	DeleteTenant(ctx context.Context, tenantID string) error

	// Principal lookup. GetPrincipalByToken is tenant-scoped; the global
	// FindPrincipalByToken exists so auth failures can distinguish a bad
	// token from a token presented against the wrong tenant.
	GetPrincipal(ctx context.Context, tenantID, principalID string) (*Principal, error)
	GetPrincipalByToken(ctx context.Context, tenantID, token string) (*Principal, error)
	FindPrincipalByToken(ctx context.Context, token string) (*Principal, error)
	ListPrincipals(ctx context.Context, tenantID string) ([]Principal, error)
	InsertPrincipal(ctx context.Context, p *Principal) error
	UpdatePrincipal(ctx context.Context, p Principal) error
	DeletePrincipal(ctx context.Context, tenantID, principalID string) error

	// Product catalog
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]Product, error)
	InsertProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, tenantID, productID string) error

	// Inventory profiles
	GetInventoryProfile(ctx context.Context, tenantID, profileID string) (*InventoryProfile, error)
	ListInventoryProfiles(ctx context.Context, tenantID string) ([]InventoryProfile, error)
	InsertInventoryProfile(ctx context.Context, p *InventoryProfile) error
	UpdateInventoryProfile(ctx context.Context, p InventoryProfile) error

	// Media buys. InsertMediaBuy returns ErrDuplicate when the principal
	// already used the buyer ref.
	GetMediaBuy(ctx context.Context, tenantID, mediaBuyID string) (*MediaBuy, error)
	GetMediaBuyByBuyerRef(ctx context.Context, tenantID, principalID, buyerRef string) (*MediaBuy, error)
	ListMediaBuys(ctx context.Context, tenantID string) ([]MediaBuy, error)
	InsertMediaBuy(ctx context.Context, m *MediaBuy) error
	UpdateMediaBuy(ctx context.Context, m MediaBuy) error

	// Scheduler queries. Both scan across tenants.
	MediaBuysDueForReport(ctx context.Context, now time.Time) ([]MediaBuy, error)
	NextReportTime(ctx context.Context) (*time.Time, error)
	MediaBuysByStatus(ctx context.Context, statuses ...string) ([]MediaBuy, error)

	// Creative library
	GetCreative(ctx context.Context, tenantID, creativeID string) (*Creative, error)
	ListCreatives(ctx context.Context, tenantID, principalID string) ([]Creative, error)
	InsertCreative(ctx context.Context, c *Creative) error
	UpdateCreative(ctx context.Context, c Creative) error

	// Creative assignments. AssignCreative is idempotent on the
	// (creative, media buy, package) triple.
	AssignCreative(ctx context.Context, a *CreativeAssignment) error
	UnassignCreative(ctx context.Context, tenantID, creativeID, mediaBuyID, packageID string) error
	ListAssignmentsByCreative(ctx context.Context, tenantID, creativeID string) ([]CreativeAssignment, error)
	ListAssignmentsByMediaBuy(ctx context.Context, tenantID, mediaBuyID string) ([]CreativeAssignment, error)

	// Creative format catalog, shared across tenants.
	ListCreativeFormats(ctx context.Context) ([]adcp.Format, error)
	InsertCreativeFormat(ctx context.Context, f adcp.Format) error

	// Conversation contexts
	GetContext(ctx context.Context, tenantID, contextID string) (*Context, error)
	UpsertContext(ctx context.Context, c *Context) error

	// Tasks and workflow steps
	GetTask(ctx context.Context, tenantID, taskID string) (*Task, error)
	ListTasks(ctx context.Context, tenantID, principalID string) ([]Task, error)
	InsertTask(ctx context.Context, t *Task) error
	UpdateTask(ctx context.Context, t Task) error
	InsertWorkflowStep(ctx context.Context, s *WorkflowStep) error
	UpdateWorkflowStep(ctx context.Context, s WorkflowStep) error
	ListWorkflowSteps(ctx context.Context, tenantID, taskID string) ([]WorkflowStep, error)

	// Push notification configs. Delete is a soft delete; deleted configs
	// stop matching reads but survive for audit.
	GetPushConfig(ctx context.Context, tenantID, taskID, configID string) (*PushNotificationConfig, error)
	ListPushConfigs(ctx context.Context, tenantID, taskID string) ([]PushNotificationConfig, error)
	UpsertPushConfig(ctx context.Context, c *PushNotificationConfig) error
	DeletePushConfig(ctx context.Context, tenantID, taskID, configID string) error
}
