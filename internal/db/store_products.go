package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toller892/adcp-salesagent/internal/models"
)

const productCols = `tenant_id, product_id, name, description, format_ids, delivery_type,
	pricing_options, min_exposures, is_custom, expires_at, inventory_profile_id,
	allowed_principal_ids, implementation_config, created_at, updated_at`

func scanProduct(row rowScanner, pr *models.Product) error {
	var (
		description, profileID               sql.NullString
		expiresAt                            sql.NullTime
		formatIDs, pricing, allowed, implCfg []byte
	)
	err := row.Scan(&pr.TenantID, &pr.ProductID, &pr.Name, &description, &formatIDs,
		&pr.DeliveryType, &pricing, &pr.MinExposures, &pr.IsCustom, &expiresAt,
		&profileID, &allowed, &implCfg, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan product: %w", err)
	}
	pr.Description = description.String
	pr.InventoryProfileID = profileID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		pr.ExpiresAt = &t
	}
	if pr.FormatIDs, err = models.NormalizeFormatRefs(formatIDs); err != nil {
		return fmt.Errorf("product format_ids: %w", err)
	}
	if err := unmarshalJSONB(pricing, &pr.PricingOptions); err != nil {
		return fmt.Errorf("product pricing_options: %w", err)
	}
	if pr.AllowedPrincipalIDs, err = models.NormalizeStringList(allowed); err != nil {
		return fmt.Errorf("product allowed_principal_ids: %w", err)
	}
	if err := unmarshalJSONB(implCfg, &pr.ImplementationConfig); err != nil {
		return fmt.Errorf("product implementation_config: %w", err)
	}
	return nil
}

// GetProduct loads one product.
func (p *Postgres) GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error) {
	var pr models.Product
	err := p.run(ctx, "get product", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+productCols+` FROM products WHERE tenant_id = $1 AND product_id = $2`,
			tenantID, productID)
		return scanProduct(row, &pr)
	})
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListProducts returns a tenant's full catalog ordered by id. Visibility
// filtering happens in the skill layer.
func (p *Postgres) ListProducts(ctx context.Context, tenantID string) ([]models.Product, error) {
	var out []models.Product
	err := p.run(ctx, "list products", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+productCols+` FROM products WHERE tenant_id = $1 ORDER BY product_id`,
			tenantID)
		if err != nil {
			return fmt.Errorf("query products: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var pr models.Product
			if err := scanProduct(rows, &pr); err != nil {
				return err
			}
			out = append(out, pr)
		}
		return rows.Err()
	})
	return out, err
}

func productParams(pr *models.Product) ([]byte, []byte, []byte, []byte, error) {
	formatIDs, err := jsonbList(pr.FormatIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal format_ids: %w", err)
	}
	pricing, err := jsonbList(pr.PricingOptions)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal pricing_options: %w", err)
	}
	allowed, err := jsonbList(pr.AllowedPrincipalIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal allowed_principal_ids: %w", err)
	}
	implCfg, err := jsonbObject(pr.ImplementationConfig)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal implementation_config: %w", err)
	}
	return formatIDs, pricing, allowed, implCfg, nil
}

// InsertProduct creates a product row.
func (p *Postgres) InsertProduct(ctx context.Context, pr *models.Product) error {
	formatIDs, pricing, allowed, implCfg, err := productParams(pr)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = now
	}
	pr.UpdatedAt = now
	return p.run(ctx, "insert product", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO products (tenant_id, product_id, name, description, format_ids,
				delivery_type, pricing_options, min_exposures, is_custom, expires_at,
				inventory_profile_id, allowed_principal_ids, implementation_config,
				created_at, updated_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10,
				NULLIF($11, ''), $12, $13, $14, $15)`,
			pr.TenantID, pr.ProductID, pr.Name, pr.Description, formatIDs,
			pr.DeliveryType, pricing, pr.MinExposures, pr.IsCustom, pr.ExpiresAt,
			pr.InventoryProfileID, allowed, implCfg, pr.CreatedAt, pr.UpdatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateProduct overwrites a product row.
func (p *Postgres) UpdateProduct(ctx context.Context, pr models.Product) error {
	formatIDs, pricing, allowed, implCfg, err := productParams(&pr)
	if err != nil {
		return err
	}
	return p.run(ctx, "update product", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE products SET name = $3, description = NULLIF($4, ''), format_ids = $5,
				delivery_type = $6, pricing_options = $7, min_exposures = $8, is_custom = $9,
				expires_at = $10, inventory_profile_id = NULLIF($11, ''),
				allowed_principal_ids = $12, implementation_config = $13, updated_at = $14
			 WHERE tenant_id = $1 AND product_id = $2`,
			pr.TenantID, pr.ProductID, pr.Name, pr.Description, formatIDs,
			pr.DeliveryType, pricing, pr.MinExposures, pr.IsCustom, pr.ExpiresAt,
			pr.InventoryProfileID, allowed, implCfg, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// DeleteProduct removes a product row.
func (p *Postgres) DeleteProduct(ctx context.Context, tenantID, productID string) error {
	return p.run(ctx, "delete product", func() error {
		res, err := p.DB.ExecContext(ctx,
			`DELETE FROM products WHERE tenant_id = $1 AND product_id = $2`,
			tenantID, productID)
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

const profileCols = `tenant_id, profile_id, name, ad_units, placements, properties, created_at`

func scanProfile(row rowScanner, pf *models.InventoryProfile) error {
	var adUnits, placements, properties []byte
	err := row.Scan(&pf.TenantID, &pf.ProfileID, &pf.Name, &adUnits, &placements,
		&properties, &pf.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan inventory profile: %w", err)
	}
	if pf.AdUnits, err = models.NormalizeStringList(adUnits); err != nil {
		return fmt.Errorf("profile ad_units: %w", err)
	}
	if pf.Placements, err = models.NormalizeStringList(placements); err != nil {
		return fmt.Errorf("profile placements: %w", err)
	}
	if err := unmarshalJSONB(properties, &pf.Properties); err != nil {
		return fmt.Errorf("profile properties: %w", err)
	}
	return nil
}

// GetInventoryProfile loads one profile.
func (p *Postgres) GetInventoryProfile(ctx context.Context, tenantID, profileID string) (*models.InventoryProfile, error) {
	var pf models.InventoryProfile
	err := p.run(ctx, "get inventory profile", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+profileCols+` FROM inventory_profiles WHERE tenant_id = $1 AND profile_id = $2`,
			tenantID, profileID)
		return scanProfile(row, &pf)
	})
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

// ListInventoryProfiles returns a tenant's profiles ordered by id.
func (p *Postgres) ListInventoryProfiles(ctx context.Context, tenantID string) ([]models.InventoryProfile, error) {
	var out []models.InventoryProfile
	err := p.run(ctx, "list inventory profiles", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+profileCols+` FROM inventory_profiles WHERE tenant_id = $1 ORDER BY profile_id`,
			tenantID)
		if err != nil {
			return fmt.Errorf("query inventory profiles: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var pf models.InventoryProfile
			if err := scanProfile(rows, &pf); err != nil {
				return err
			}
			out = append(out, pf)
		}
		return rows.Err()
	})
	return out, err
}

// InsertInventoryProfile creates a profile row.
func (p *Postgres) InsertInventoryProfile(ctx context.Context, pf *models.InventoryProfile) error {
	adUnits, err := jsonbList(pf.AdUnits)
	if err != nil {
		return fmt.Errorf("marshal ad_units: %w", err)
	}
	placements, err := jsonbList(pf.Placements)
	if err != nil {
		return fmt.Errorf("marshal placements: %w", err)
	}
	properties, err := jsonbList(pf.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	if err := models.ValidatePublisherProperties(properties); err != nil {
		return err
	}
	if pf.CreatedAt.IsZero() {
		pf.CreatedAt = time.Now().UTC()
	}
	return p.run(ctx, "insert inventory profile", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO inventory_profiles (tenant_id, profile_id, name, ad_units,
				placements, properties, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			pf.TenantID, pf.ProfileID, pf.Name, adUnits, placements, properties, pf.CreatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateInventoryProfile overwrites a profile row.
func (p *Postgres) UpdateInventoryProfile(ctx context.Context, pf models.InventoryProfile) error {
	adUnits, err := jsonbList(pf.AdUnits)
	if err != nil {
		return fmt.Errorf("marshal ad_units: %w", err)
	}
	placements, err := jsonbList(pf.Placements)
	if err != nil {
		return fmt.Errorf("marshal placements: %w", err)
	}
	properties, err := jsonbList(pf.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	if err := models.ValidatePublisherProperties(properties); err != nil {
		return err
	}
	return p.run(ctx, "update inventory profile", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE inventory_profiles SET name = $3, ad_units = $4, placements = $5, properties = $6
			 WHERE tenant_id = $1 AND profile_id = $2`,
			pf.TenantID, pf.ProfileID, pf.Name, adUnits, placements, properties)
		if err != nil {
			return fmt.Errorf("update inventory profile: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}
