package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/toller892/adcp-salesagent/internal/models"
)

const mediaBuyCols = `tenant_id, media_buy_id, principal_id, buyer_ref, status,
	promoted_offering, po_number, currency, budget, start_time, end_time, packages,
	adapter_order_id, raw_request, reporting_webhook, next_report_at, created_at, updated_at`

func scanMediaBuy(row rowScanner, m *models.MediaBuy) error {
	var (
		promoted, poNumber, currency, orderID sql.NullString
		nextReport                            sql.NullTime
		budget, packages, rawReq, webhook     []byte
	)
	err := row.Scan(&m.TenantID, &m.MediaBuyID, &m.PrincipalID, &m.BuyerRef, &m.Status,
		&promoted, &poNumber, &currency, &budget, &m.StartTime, &m.EndTime, &packages,
		&orderID, &rawReq, &webhook, &nextReport, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan media buy: %w", err)
	}
	m.PromotedOffering = promoted.String
	m.PONumber = poNumber.String
	m.Currency = currency.String
	m.AdapterOrderID = orderID.String
	if nextReport.Valid {
		t := nextReport.Time
		m.NextReportAt = &t
	}
	if err := unmarshalJSONB(budget, &m.Budget); err != nil {
		return fmt.Errorf("media buy budget: %w", err)
	}
	if err := unmarshalJSONB(packages, &m.Packages); err != nil {
		return fmt.Errorf("media buy packages: %w", err)
	}
	if len(rawReq) > 0 {
		m.RawRequest = append([]byte(nil), rawReq...)
	}
	if err := unmarshalJSONB(webhook, &m.ReportingWebhook); err != nil {
		return fmt.Errorf("media buy reporting_webhook: %w", err)
	}
	return nil
}

// GetMediaBuy loads one media buy.
func (p *Postgres) GetMediaBuy(ctx context.Context, tenantID, mediaBuyID string) (*models.MediaBuy, error) {
	var m models.MediaBuy
	err := p.run(ctx, "get media buy", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+mediaBuyCols+` FROM media_buys WHERE tenant_id = $1 AND media_buy_id = $2`,
			tenantID, mediaBuyID)
		return scanMediaBuy(row, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMediaBuyByBuyerRef loads a media buy by the buyer's own reference.
func (p *Postgres) GetMediaBuyByBuyerRef(ctx context.Context, tenantID, principalID, buyerRef string) (*models.MediaBuy, error) {
	var m models.MediaBuy
	err := p.run(ctx, "get media buy by buyer ref", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+mediaBuyCols+` FROM media_buys
			 WHERE tenant_id = $1 AND principal_id = $2 AND buyer_ref = $3`,
			tenantID, principalID, buyerRef)
		return scanMediaBuy(row, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMediaBuys returns all buys of a tenant ordered by id.
func (p *Postgres) ListMediaBuys(ctx context.Context, tenantID string) ([]models.MediaBuy, error) {
	var out []models.MediaBuy
	err := p.run(ctx, "list media buys", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+mediaBuyCols+` FROM media_buys WHERE tenant_id = $1 ORDER BY media_buy_id`,
			tenantID)
		if err != nil {
			return fmt.Errorf("query media buys: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m models.MediaBuy
			if err := scanMediaBuy(rows, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

func mediaBuyParams(m *models.MediaBuy) ([]byte, []byte, []byte, []byte, error) {
	budget, err := jsonbOrNull(m.Budget)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal budget: %w", err)
	}
	packages, err := jsonbList(m.Packages)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal packages: %w", err)
	}
	rawReq, err := jsonbOrNull(m.RawRequest)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal raw_request: %w", err)
	}
	webhook, err := jsonbOrNull(m.ReportingWebhook)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal reporting_webhook: %w", err)
	}
	return budget, packages, rawReq, webhook, nil
}

// InsertMediaBuy creates a buy. A buyer_ref already used by the principal
// returns ErrDuplicate via the unique index.
func (p *Postgres) InsertMediaBuy(ctx context.Context, m *models.MediaBuy) error {
	budget, packages, rawReq, webhook, err := mediaBuyParams(m)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return p.run(ctx, "insert media buy", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO media_buys (tenant_id, media_buy_id, principal_id, buyer_ref, status,
				promoted_offering, po_number, currency, budget, start_time, end_time, packages,
				adapter_order_id, raw_request, reporting_webhook, next_report_at,
				created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
				$9, $10, $11, $12, NULLIF($13, ''), $14, $15, $16, $17, $18)`,
			m.TenantID, m.MediaBuyID, m.PrincipalID, m.BuyerRef, m.Status,
			m.PromotedOffering, m.PONumber, m.Currency, budget, m.StartTime, m.EndTime,
			packages, m.AdapterOrderID, rawReq, webhook, m.NextReportAt,
			m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateMediaBuy overwrites a buy row.
func (p *Postgres) UpdateMediaBuy(ctx context.Context, m models.MediaBuy) error {
	budget, packages, rawReq, webhook, err := mediaBuyParams(&m)
	if err != nil {
		return err
	}
	return p.run(ctx, "update media buy", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE media_buys SET status = $3, promoted_offering = NULLIF($4, ''),
				po_number = NULLIF($5, ''), currency = NULLIF($6, ''), budget = $7,
				start_time = $8, end_time = $9, packages = $10,
				adapter_order_id = NULLIF($11, ''), raw_request = $12,
				reporting_webhook = $13, next_report_at = $14, updated_at = $15
			 WHERE tenant_id = $1 AND media_buy_id = $2`,
			m.TenantID, m.MediaBuyID, m.Status, m.PromotedOffering, m.PONumber,
			m.Currency, budget, m.StartTime, m.EndTime, packages, m.AdapterOrderID,
			rawReq, webhook, m.NextReportAt, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update media buy: %w", err)
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

// MediaBuysDueForReport returns buys across all tenants whose next report
// fire time has passed.
func (p *Postgres) MediaBuysDueForReport(ctx context.Context, now time.Time) ([]models.MediaBuy, error) {
	var out []models.MediaBuy
	err := p.run(ctx, "media buys due for report", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+mediaBuyCols+` FROM media_buys
			 WHERE next_report_at IS NOT NULL AND next_report_at <= $1
			 ORDER BY next_report_at`, now)
		if err != nil {
			return fmt.Errorf("query due media buys: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m models.MediaBuy
			if err := scanMediaBuy(rows, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// NextReportTime returns the earliest pending report fire time, or nil when
// no buy has a reporting webhook.
func (p *Postgres) NextReportTime(ctx context.Context) (*time.Time, error) {
	var next *time.Time
	err := p.run(ctx, "next report time", func() error {
		var t sql.NullTime
		err := p.DB.QueryRowContext(ctx,
			`SELECT MIN(next_report_at) FROM media_buys WHERE next_report_at IS NOT NULL`).Scan(&t)
		if err != nil {
			return fmt.Errorf("query next report time: %w", err)
		}
		if t.Valid {
			v := t.Time
			next = &v
		}
		return nil
	})
	return next, err
}

// MediaBuysByStatus returns buys across all tenants in any of the given
// statuses, for the lifecycle scheduler.
func (p *Postgres) MediaBuysByStatus(ctx context.Context, statuses ...string) ([]models.MediaBuy, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var out []models.MediaBuy
	err := p.run(ctx, "media buys by status", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+mediaBuyCols+` FROM media_buys WHERE status = ANY($1) ORDER BY media_buy_id`,
			pq.Array(statuses))
		if err != nil {
			return fmt.Errorf("query media buys by status: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m models.MediaBuy
			if err := scanMediaBuy(rows, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
