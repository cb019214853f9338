package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Event types recorded against a media buy.
const (
	EventImpression    = "impression"
	EventClick         = "click"
	EventVideoComplete = "video_complete"
)

// ErrUnavailable is returned when the analytics DB is not configured. The
// delivery skill degrades to simulated totals in that case.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// DeliveryEvent is one unit of recorded delivery against a package.
type DeliveryEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	TenantID    string    `json:"tenant_id"`
	MediaBuyID  string    `json:"media_buy_id"`
	PackageID   string    `json:"package_id"`
	CreativeID  string    `json:"creative_id,omitempty"`
	EventType   string    `json:"event_type"`
	Impressions int64     `json:"impressions"`
	Spend       float64   `json:"spend"`
}

// DeliveryTotals aggregates events over a window.
type DeliveryTotals struct {
	Impressions      int64   `json:"impressions"`
	Spend            float64 `json:"spend"`
	Clicks           int64   `json:"clicks"`
	VideoCompletions int64   `json:"video_completions"`
}

// AnalyticsService defines the interface for delivery analytics.
// Implementations should handle cases where underlying storage is
// unavailable by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordDelivery appends one delivery event.
	RecordDelivery(ctx context.Context, ev DeliveryEvent) error
	// MediaBuyTotals aggregates a buy's delivery inside [start, end).
	MediaBuyTotals(ctx context.Context, tenantID, mediaBuyID string, start, end time.Time) (DeliveryTotals, error)
	// PackageTotals aggregates per package inside [start, end).
	PackageTotals(ctx context.Context, tenantID, mediaBuyID string, start, end time.Time) (map[string]DeliveryTotals, error)
	// RecentEvents returns the newest raw events for a buy, for debugging.
	RecentEvents(ctx context.Context, tenantID, mediaBuyID string, limit int) ([]DeliveryEvent, error)
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

var _ AnalyticsService = (*Analytics)(nil)

// InitClickHouse connects to ClickHouse and ensures the delivery events
// table exists.
func InitClickHouse(dsn string) (*Analytics, error) {
	ch, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	ch.SetMaxOpenConns(25)
	if err := ch.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS delivery_events (
       timestamp    DateTime,
       tenant_id    String,
       media_buy_id String,
       package_id   String,
       creative_id  Nullable(String),
       event_type   String,
       impressions  Int64,
       spend        Float64
   ) ENGINE=MergeTree() ORDER BY (tenant_id, media_buy_id, timestamp)`
	if _, err := ch.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: ch}, nil
}

// RecordDelivery inserts a single delivery event row.
func (a *Analytics) RecordDelivery(ctx context.Context, ev DeliveryEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	var creative sql.NullString
	if ev.CreativeID != "" {
		creative.String = ev.CreativeID
		creative.Valid = true
	}
	stmt := `INSERT INTO delivery_events (timestamp, tenant_id, media_buy_id, package_id, creative_id, event_type, impressions, spend) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.TenantID, ev.MediaBuyID,
		ev.PackageID, creative, ev.EventType, ev.Impressions, ev.Spend); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", ev.EventType))
		return fmt.Errorf("insert %s event: %w", ev.EventType, err)
	}
	return nil
}

// MediaBuyTotals aggregates a buy's delivery inside [start, end).
func (a *Analytics) MediaBuyTotals(ctx context.Context, tenantID, mediaBuyID string, start, end time.Time) (DeliveryTotals, error) {
	if a == nil || a.DB == nil {
		return DeliveryTotals{}, ErrUnavailable
	}
	query := `SELECT
       sumIf(impressions, event_type = 'impression'),
       sum(spend),
       countIf(event_type = 'click'),
       countIf(event_type = 'video_complete')
   FROM delivery_events
   WHERE tenant_id = ? AND media_buy_id = ? AND timestamp >= ? AND timestamp < ?`
	var t DeliveryTotals
	err := a.DB.QueryRowContext(ctx, query, tenantID, mediaBuyID, start, end).
		Scan(&t.Impressions, &t.Spend, &t.Clicks, &t.VideoCompletions)
	if err != nil {
		return DeliveryTotals{}, fmt.Errorf("query media buy totals: %w", err)
	}
	return t, nil
}

// PackageTotals aggregates per package inside [start, end).
func (a *Analytics) PackageTotals(ctx context.Context, tenantID, mediaBuyID string, start, end time.Time) (map[string]DeliveryTotals, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT
       package_id,
       sumIf(impressions, event_type = 'impression'),
       sum(spend),
       countIf(event_type = 'click'),
       countIf(event_type = 'video_complete')
   FROM delivery_events
   WHERE tenant_id = ? AND media_buy_id = ? AND timestamp >= ? AND timestamp < ?
   GROUP BY package_id`
	rows, err := a.DB.QueryContext(ctx, query, tenantID, mediaBuyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query package totals: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	out := make(map[string]DeliveryTotals)
	for rows.Next() {
		var pkg string
		var t DeliveryTotals
		if err := rows.Scan(&pkg, &t.Impressions, &t.Spend, &t.Clicks, &t.VideoCompletions); err != nil {
			return nil, fmt.Errorf("scan package totals: %w", err)
		}
		out[pkg] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// RecentEvents returns the newest raw events for a buy ordered newest first.
func (a *Analytics) RecentEvents(ctx context.Context, tenantID, mediaBuyID string, limit int) ([]DeliveryEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT timestamp, tenant_id, media_buy_id, package_id, creative_id, event_type, impressions, spend
   FROM delivery_events
   WHERE tenant_id = ? AND media_buy_id = ?
   ORDER BY timestamp DESC LIMIT ?`
	rows, err := a.DB.QueryContext(ctx, query, tenantID, mediaBuyID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []DeliveryEvent
	for rows.Next() {
		var ev DeliveryEvent
		var creative sql.NullString
		if err := rows.Scan(&ev.Timestamp, &ev.TenantID, &ev.MediaBuyID, &ev.PackageID,
			&creative, &ev.EventType, &ev.Impressions, &ev.Spend); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.CreativeID = creative.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
