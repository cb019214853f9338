package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
)

const creativeCols = `tenant_id, creative_id, principal_id, name, format_id, status,
	url, snippet, snippet_type, click_url, width, height, duration, tags, assets,
	created_at, updated_at`

func scanCreative(row rowScanner, c *models.Creative) error {
	var (
		url, snippet, snippetType, clickURL sql.NullString
		formatID, tags, assets              []byte
	)
	err := row.Scan(&c.TenantID, &c.CreativeID, &c.PrincipalID, &c.Name, &formatID,
		&c.Status, &url, &snippet, &snippetType, &clickURL, &c.Width, &c.Height,
		&c.Duration, &tags, &assets, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan creative: %w", err)
	}
	c.URL = url.String
	c.Snippet = snippet.String
	c.SnippetType = snippetType.String
	c.ClickURL = clickURL.String
	if err := unmarshalJSONB(formatID, &c.FormatID); err != nil {
		return fmt.Errorf("creative format_id: %w", err)
	}
	if err := unmarshalJSONB(tags, &c.Tags); err != nil {
		return fmt.Errorf("creative tags: %w", err)
	}
	if len(assets) > 0 {
		c.Assets = append([]byte(nil), assets...)
	}
	return nil
}

// GetCreative loads one creative.
func (p *Postgres) GetCreative(ctx context.Context, tenantID, creativeID string) (*models.Creative, error) {
	var c models.Creative
	err := p.run(ctx, "get creative", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+creativeCols+` FROM creatives WHERE tenant_id = $1 AND creative_id = $2`,
			tenantID, creativeID)
		return scanCreative(row, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCreatives returns creatives in a tenant, optionally narrowed to one
// principal's library.
func (p *Postgres) ListCreatives(ctx context.Context, tenantID, principalID string) ([]models.Creative, error) {
	var out []models.Creative
	err := p.run(ctx, "list creatives", func() error {
		out = nil
		query := `SELECT ` + creativeCols + ` FROM creatives WHERE tenant_id = $1`
		args := []any{tenantID}
		if principalID != "" {
			query += ` AND principal_id = $2`
			args = append(args, principalID)
		}
		query += ` ORDER BY creative_id`
		rows, err := p.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query creatives: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c models.Creative
			if err := scanCreative(rows, &c); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

func creativeParams(c *models.Creative) ([]byte, []byte, []byte, error) {
	formatID, err := jsonbOrNull(c.FormatID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal format_id: %w", err)
	}
	tags, err := jsonbList(c.Tags)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	assets, err := jsonbOrNull(c.Assets)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal assets: %w", err)
	}
	return formatID, tags, assets, nil
}

// InsertCreative creates a creative row.
func (p *Postgres) InsertCreative(ctx context.Context, c *models.Creative) error {
	formatID, tags, assets, err := creativeParams(c)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return p.run(ctx, "insert creative", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO creatives (tenant_id, creative_id, principal_id, name, format_id,
				status, url, snippet, snippet_type, click_url, width, height, duration,
				tags, assets, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''),
				NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17)`,
			c.TenantID, c.CreativeID, c.PrincipalID, c.Name, formatID, c.Status,
			c.URL, c.Snippet, c.SnippetType, c.ClickURL, c.Width, c.Height,
			c.Duration, tags, assets, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateCreative overwrites a creative row.
func (p *Postgres) UpdateCreative(ctx context.Context, c models.Creative) error {
	formatID, tags, assets, err := creativeParams(&c)
	if err != nil {
		return err
	}
	return p.run(ctx, "update creative", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE creatives SET name = $3, format_id = $4, status = $5,
				url = NULLIF($6, ''), snippet = NULLIF($7, ''), snippet_type = NULLIF($8, ''),
				click_url = NULLIF($9, ''), width = $10, height = $11, duration = $12,
				tags = $13, assets = $14, updated_at = $15
			 WHERE tenant_id = $1 AND creative_id = $2`,
			c.TenantID, c.CreativeID, c.Name, formatID, c.Status, c.URL, c.Snippet,
			c.SnippetType, c.ClickURL, c.Width, c.Height, c.Duration, tags, assets,
			time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update creative: %w", err)
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

// AssignCreative binds a creative to a package. Re-assigning the same
// triple keeps the existing row and echoes its id back.
func (p *Postgres) AssignCreative(ctx context.Context, a *models.CreativeAssignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return p.run(ctx, "assign creative", func() error {
		row := p.DB.QueryRowContext(ctx,
			`INSERT INTO creative_assignments (tenant_id, assignment_id, creative_id,
				media_buy_id, package_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (tenant_id, creative_id, media_buy_id, package_id)
			 DO UPDATE SET creative_id = EXCLUDED.creative_id
			 RETURNING assignment_id, created_at`,
			a.TenantID, a.AssignmentID, a.CreativeID, a.MediaBuyID, a.PackageID, a.CreatedAt)
		if err := row.Scan(&a.AssignmentID, &a.CreatedAt); err != nil {
			return fmt.Errorf("assign creative: %w", err)
		}
		return nil
	})
}

// UnassignCreative removes one creative-package binding.
func (p *Postgres) UnassignCreative(ctx context.Context, tenantID, creativeID, mediaBuyID, packageID string) error {
	return p.run(ctx, "unassign creative", func() error {
		res, err := p.DB.ExecContext(ctx,
			`DELETE FROM creative_assignments
			 WHERE tenant_id = $1 AND creative_id = $2 AND media_buy_id = $3 AND package_id = $4`,
			tenantID, creativeID, mediaBuyID, packageID)
		if err != nil {
			return fmt.Errorf("unassign creative: %w", err)
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

const assignmentCols = `tenant_id, assignment_id, creative_id, media_buy_id, package_id, created_at`

func (p *Postgres) listAssignments(ctx context.Context, op, where string, args ...any) ([]models.CreativeAssignment, error) {
	var out []models.CreativeAssignment
	err := p.run(ctx, op, func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+assignmentCols+` FROM creative_assignments WHERE `+where+` ORDER BY assignment_id`,
			args...)
		if err != nil {
			return fmt.Errorf("query assignments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a models.CreativeAssignment
			if err := rows.Scan(&a.TenantID, &a.AssignmentID, &a.CreativeID,
				&a.MediaBuyID, &a.PackageID, &a.CreatedAt); err != nil {
				return fmt.Errorf("scan assignment: %w", err)
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

// ListAssignmentsByCreative returns the packages a creative runs in.
func (p *Postgres) ListAssignmentsByCreative(ctx context.Context, tenantID, creativeID string) ([]models.CreativeAssignment, error) {
	return p.listAssignments(ctx, "list assignments by creative",
		`tenant_id = $1 AND creative_id = $2`, tenantID, creativeID)
}

// ListAssignmentsByMediaBuy returns the creatives bound to a buy.
func (p *Postgres) ListAssignmentsByMediaBuy(ctx context.Context, tenantID, mediaBuyID string) ([]models.CreativeAssignment, error) {
	return p.listAssignments(ctx, "list assignments by media buy",
		`tenant_id = $1 AND media_buy_id = $2`, tenantID, mediaBuyID)
}

// ListCreativeFormats returns the shared format catalog.
func (p *Postgres) ListCreativeFormats(ctx context.Context) ([]adcp.Format, error) {
	var out []adcp.Format
	err := p.run(ctx, "list creative formats", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT agent_url, format_id, name, type, is_standard, requirements, assets_required
			 FROM creative_formats ORDER BY format_id`)
		if err != nil {
			return fmt.Errorf("query creative formats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var f adcp.Format
			var requirements, assetsRequired []byte
			if err := rows.Scan(&f.AgentURL, &f.FormatID, &f.Name, &f.Type,
				&f.IsStandard, &requirements, &assetsRequired); err != nil {
				return fmt.Errorf("scan creative format: %w", err)
			}
			if err := unmarshalJSONB(requirements, &f.Requirements); err != nil {
				return fmt.Errorf("format requirements: %w", err)
			}
			if err := unmarshalJSONB(assetsRequired, &f.AssetsRequired); err != nil {
				return fmt.Errorf("format assets_required: %w", err)
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	return out, err
}

// InsertCreativeFormat adds one format to the catalog.
func (p *Postgres) InsertCreativeFormat(ctx context.Context, f adcp.Format) error {
	requirements, err := jsonbObject(f.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}
	assetsRequired, err := jsonbList(f.AssetsRequired)
	if err != nil {
		return fmt.Errorf("marshal assets_required: %w", err)
	}
	return p.run(ctx, "insert creative format", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO creative_formats (agent_url, format_id, name, type, is_standard,
				requirements, assets_required)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.AgentURL, f.FormatID, f.Name, f.Type, f.IsStandard, requirements, assetsRequired)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}
