package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toller892/adcp-salesagent/internal/models"
)

const principalCols = `tenant_id, principal_id, name, access_token, platform_mappings, created_at`

func scanPrincipal(row rowScanner, pr *models.Principal) error {
	var mappings []byte
	err := row.Scan(&pr.TenantID, &pr.PrincipalID, &pr.Name, &pr.AccessToken,
		&mappings, &pr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan principal: %w", err)
	}
	if err := unmarshalJSONB(mappings, &pr.PlatformMappings); err != nil {
		return fmt.Errorf("principal platform_mappings: %w", err)
	}
	return nil
}

// GetPrincipal loads a principal by id within a tenant.
func (p *Postgres) GetPrincipal(ctx context.Context, tenantID, principalID string) (*models.Principal, error) {
	var pr models.Principal
	err := p.run(ctx, "get principal", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+principalCols+` FROM principals WHERE tenant_id = $1 AND principal_id = $2`,
			tenantID, principalID)
		return scanPrincipal(row, &pr)
	})
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// GetPrincipalByToken resolves a bearer token within one tenant. Tokens
// belonging to other tenants do not match here.
func (p *Postgres) GetPrincipalByToken(ctx context.Context, tenantID, token string) (*models.Principal, error) {
	var pr models.Principal
	err := p.run(ctx, "get principal by token", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+principalCols+` FROM principals WHERE tenant_id = $1 AND access_token = $2`,
			tenantID, token)
		return scanPrincipal(row, &pr)
	})
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// FindPrincipalByToken resolves a bearer token across all tenants, used to
// tell a wrong-tenant token apart from an unknown one.
func (p *Postgres) FindPrincipalByToken(ctx context.Context, token string) (*models.Principal, error) {
	var pr models.Principal
	err := p.run(ctx, "find principal by token", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+principalCols+` FROM principals WHERE access_token = $1`, token)
		return scanPrincipal(row, &pr)
	})
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListPrincipals returns a tenant's principals ordered by id.
func (p *Postgres) ListPrincipals(ctx context.Context, tenantID string) ([]models.Principal, error) {
	var out []models.Principal
	err := p.run(ctx, "list principals", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+principalCols+` FROM principals WHERE tenant_id = $1 ORDER BY principal_id`,
			tenantID)
		if err != nil {
			return fmt.Errorf("query principals: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var pr models.Principal
			if err := scanPrincipal(rows, &pr); err != nil {
				return err
			}
			out = append(out, pr)
		}
		return rows.Err()
	})
	return out, err
}

// InsertPrincipal creates a principal. Reusing an access token anywhere on
// the platform returns ErrDuplicate.
func (p *Postgres) InsertPrincipal(ctx context.Context, pr *models.Principal) error {
	mappings, err := jsonbOrNull(pr.PlatformMappings)
	if err != nil {
		return fmt.Errorf("marshal platform_mappings: %w", err)
	}
	if mappings == nil {
		mappings = []byte(`{}`)
	}
	if err := models.ValidatePlatformMappings(mappings); err != nil {
		return err
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}
	return p.run(ctx, "insert principal", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO principals (tenant_id, principal_id, name, access_token, platform_mappings, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			pr.TenantID, pr.PrincipalID, pr.Name, pr.AccessToken, mappings, pr.CreatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdatePrincipal overwrites a principal row.
func (p *Postgres) UpdatePrincipal(ctx context.Context, pr models.Principal) error {
	mappings, err := jsonbOrNull(pr.PlatformMappings)
	if err != nil {
		return fmt.Errorf("marshal platform_mappings: %w", err)
	}
	if mappings == nil {
		mappings = []byte(`{}`)
	}
	if err := models.ValidatePlatformMappings(mappings); err != nil {
		return err
	}
	return p.run(ctx, "update principal", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE principals SET name = $3, access_token = $4, platform_mappings = $5
			 WHERE tenant_id = $1 AND principal_id = $2`,
			pr.TenantID, pr.PrincipalID, pr.Name, pr.AccessToken, mappings)
		if err != nil {
			return fmt.Errorf("update principal: %w", err)
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

// DeletePrincipal removes a principal row.
func (p *Postgres) DeletePrincipal(ctx context.Context, tenantID, principalID string) error {
	return p.run(ctx, "delete principal", func() error {
		res, err := p.DB.ExecContext(ctx,
			`DELETE FROM principals WHERE tenant_id = $1 AND principal_id = $2`,
			tenantID, principalID)
		if err != nil {
			return fmt.Errorf("delete principal: %w", err)
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
