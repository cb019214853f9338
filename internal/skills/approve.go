package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// ProvisionMediaBuy pushes an operator-approved buy to the tenant's ad
// server and persists the resulting status. The implementation config is
// rebuilt from the catalog as it stands at approval; a product edited while
// the buy sat in review provisions with its edited settings.
func ProvisionMediaBuy(ctx context.Context, store models.Store, registry *adapters.Registry, tenant *models.Tenant, buy *models.MediaBuy) (*adapters.CreateResult, error) {
	adapter, err := registry.ForTenant(tenant)
	if err != nil {
		return nil, fmt.Errorf("adapter for tenant %s: %w", tenant.TenantID, err)
	}
	principal, err := store.GetPrincipal(ctx, tenant.TenantID, buy.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("load principal %s: %w", buy.PrincipalID, err)
	}

	implConfig := make(map[string]json.RawMessage, len(buy.Packages))
	for i := range buy.Packages {
		pkg := &buy.Packages[i]
		product, err := store.GetProduct(ctx, tenant.TenantID, pkg.ProductID)
		if err != nil {
			return nil, fmt.Errorf("package %s references missing product %q", pkg.PackageID, pkg.ProductID)
		}
		cfg, err := implementationConfig(ctx, store, tenant.TenantID, product)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			implConfig[pkg.PackageID] = cfg
		}
	}

	result, err := adapter.CreateMediaBuy(ctx, &adapters.CreateRequest{
		Principal:            principal,
		MediaBuy:             buy,
		ImplementationConfig: implConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", adapter.Name(), err)
	}

	buy.Status = result.Status
	buy.AdapterOrderID = result.OrderID
	buy.UpdatedAt = time.Now().UTC()
	if err := store.UpdateMediaBuy(ctx, *buy); err != nil {
		return nil, fmt.Errorf("persist approved buy: %w", err)
	}
	zap.L().Info("Media buy approved and provisioned",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status))
	return result, nil
}
