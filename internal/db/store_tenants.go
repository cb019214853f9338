package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toller892/adcp-salesagent/internal/models"
)

const tenantCols = `tenant_id, name, subdomain, virtual_host, ad_server, human_review_required,
	brand_manifest_policy, auto_approve_format_ids, authorized_emails, authorized_domains,
	publisher_domains, primary_channels, primary_countries, portfolio_description,
	advertising_policies, adapter_config, is_active, created_at, updated_at`

func scanTenant(row rowScanner, t *models.Tenant) error {
	var (
		virtualHost, brandPolicy, portfolio, policies                             sql.NullString
		autoApprove, emails, domains, pubDomains, channels, countries, adapterCfg []byte
	)
	err := row.Scan(&t.TenantID, &t.Name, &t.Subdomain, &virtualHost, &t.AdServer,
		&t.HumanReviewRequired, &brandPolicy, &autoApprove, &emails, &domains,
		&pubDomains, &channels, &countries, &portfolio, &policies, &adapterCfg,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan tenant: %w", err)
	}
	t.VirtualHost = virtualHost.String
	t.BrandManifestPolicy = brandPolicy.String
	t.PortfolioDescription = portfolio.String
	t.AdvertisingPolicies = policies.String
	if t.AutoApproveFormatIDs, err = models.NormalizeFormatRefs(autoApprove); err != nil {
		return fmt.Errorf("tenant auto_approve_format_ids: %w", err)
	}
	if t.AuthorizedEmails, err = models.NormalizeStringList(emails); err != nil {
		return fmt.Errorf("tenant authorized_emails: %w", err)
	}
	if t.AuthorizedDomains, err = models.NormalizeStringList(domains); err != nil {
		return fmt.Errorf("tenant authorized_domains: %w", err)
	}
	if t.PublisherDomains, err = models.NormalizeStringList(pubDomains); err != nil {
		return fmt.Errorf("tenant publisher_domains: %w", err)
	}
	if t.PrimaryChannels, err = models.NormalizeStringList(channels); err != nil {
		return fmt.Errorf("tenant primary_channels: %w", err)
	}
	if t.PrimaryCountries, err = models.NormalizeStringList(countries); err != nil {
		return fmt.Errorf("tenant primary_countries: %w", err)
	}
	if t.AdapterConfig, err = models.NormalizeObject(adapterCfg); err != nil {
		return fmt.Errorf("tenant adapter_config: %w", err)
	}
	return nil
}

// GetTenant loads a tenant by id.
func (p *Postgres) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var t models.Tenant
	err := p.run(ctx, "get tenant", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+tenantCols+` FROM tenants WHERE tenant_id = $1`, tenantID)
		return scanTenant(row, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenantBySubdomain resolves the tenant addressed by a host subdomain.
func (p *Postgres) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	var t models.Tenant
	err := p.run(ctx, "get tenant by subdomain", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+tenantCols+` FROM tenants WHERE subdomain = $1`, subdomain)
		return scanTenant(row, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenantByVirtualHost resolves the tenant addressed by a proxied host.
func (p *Postgres) GetTenantByVirtualHost(ctx context.Context, host string) (*models.Tenant, error) {
	var t models.Tenant
	err := p.run(ctx, "get tenant by virtual host", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+tenantCols+` FROM tenants WHERE virtual_host = $1`, host)
		return scanTenant(row, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTenants returns all tenants ordered by id.
func (p *Postgres) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	err := p.run(ctx, "list tenants", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+tenantCols+` FROM tenants ORDER BY tenant_id`)
		if err != nil {
			return fmt.Errorf("query tenants: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var t models.Tenant
			if err := scanTenant(rows, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// InsertTenant creates a tenant. Subdomain collisions return ErrDuplicate.
func (p *Postgres) InsertTenant(ctx context.Context, t *models.Tenant) error {
	autoApprove, err := jsonbList(t.AutoApproveFormatIDs)
	if err != nil {
		return fmt.Errorf("marshal auto_approve_format_ids: %w", err)
	}
	emails, err := jsonbList(t.AuthorizedEmails)
	if err != nil {
		return fmt.Errorf("marshal authorized_emails: %w", err)
	}
	domains, err := jsonbList(t.AuthorizedDomains)
	if err != nil {
		return fmt.Errorf("marshal authorized_domains: %w", err)
	}
	pubDomains, err := jsonbList(t.PublisherDomains)
	if err != nil {
		return fmt.Errorf("marshal publisher_domains: %w", err)
	}
	channels, err := jsonbList(t.PrimaryChannels)
	if err != nil {
		return fmt.Errorf("marshal primary_channels: %w", err)
	}
	countries, err := jsonbList(t.PrimaryCountries)
	if err != nil {
		return fmt.Errorf("marshal primary_countries: %w", err)
	}
	adapterCfg, err := jsonbObject(t.AdapterConfig)
	if err != nil {
		return fmt.Errorf("marshal adapter_config: %w", err)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	return p.run(ctx, "insert tenant", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO tenants (tenant_id, name, subdomain, virtual_host, ad_server,
				human_review_required, brand_manifest_policy, auto_approve_format_ids,
				authorized_emails, authorized_domains, publisher_domains, primary_channels,
				primary_countries, portfolio_description, advertising_policies,
				adapter_config, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, $10,
				$11, $12, $13, NULLIF($14, ''), NULLIF($15, ''), $16, $17, $18, $19)`,
			t.TenantID, t.Name, t.Subdomain, t.VirtualHost, t.AdServer,
			t.HumanReviewRequired, t.BrandManifestPolicy, autoApprove, emails, domains,
			pubDomains, channels, countries, t.PortfolioDescription, t.AdvertisingPolicies,
			adapterCfg, t.IsActive, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateTenant overwrites a tenant row.
func (p *Postgres) UpdateTenant(ctx context.Context, t models.Tenant) error {
	autoApprove, err := jsonbList(t.AutoApproveFormatIDs)
	if err != nil {
		return fmt.Errorf("marshal auto_approve_format_ids: %w", err)
	}
	emails, err := jsonbList(t.AuthorizedEmails)
	if err != nil {
		return fmt.Errorf("marshal authorized_emails: %w", err)
	}
	domains, err := jsonbList(t.AuthorizedDomains)
	if err != nil {
		return fmt.Errorf("marshal authorized_domains: %w", err)
	}
	pubDomains, err := jsonbList(t.PublisherDomains)
	if err != nil {
		return fmt.Errorf("marshal publisher_domains: %w", err)
	}
	channels, err := jsonbList(t.PrimaryChannels)
	if err != nil {
		return fmt.Errorf("marshal primary_channels: %w", err)
	}
	countries, err := jsonbList(t.PrimaryCountries)
	if err != nil {
		return fmt.Errorf("marshal primary_countries: %w", err)
	}
	adapterCfg, err := jsonbObject(t.AdapterConfig)
	if err != nil {
		return fmt.Errorf("marshal adapter_config: %w", err)
	}

	return p.run(ctx, "update tenant", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE tenants SET name = $2, subdomain = $3, virtual_host = NULLIF($4, ''),
				ad_server = $5, human_review_required = $6, brand_manifest_policy = NULLIF($7, ''),
				auto_approve_format_ids = $8, authorized_emails = $9, authorized_domains = $10,
				publisher_domains = $11, primary_channels = $12, primary_countries = $13,
				portfolio_description = NULLIF($14, ''), advertising_policies = NULLIF($15, ''),
				adapter_config = $16, is_active = $17, updated_at = $18
			 WHERE tenant_id = $1`,
			t.TenantID, t.Name, t.Subdomain, t.VirtualHost, t.AdServer,
			t.HumanReviewRequired, t.BrandManifestPolicy, autoApprove, emails, domains,
			pubDomains, channels, countries, t.PortfolioDescription, t.AdvertisingPolicies,
			adapterCfg, t.IsActive, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update tenant: %w", err)
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

// DeleteTenant removes a tenant row. Dependent rows are expected to be
// cleaned up by the caller first; foreign keys will reject otherwise.
func (p *Postgres) DeleteTenant(ctx context.Context, tenantID string) error {
	return p.run(ctx, "delete tenant", func() error {
		res, err := p.DB.ExecContext(ctx,
			`DELETE FROM tenants WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return fmt.Errorf("delete tenant: %w", err)
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
