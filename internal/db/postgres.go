package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

// Postgres wraps the postgres connection pool together with the circuit
// breaker that guards it.
type Postgres struct {
	DB       *sql.DB
	metrics  observability.MetricsRegistry
	breaker  breaker
	poolSize int
	maxIdle  int
	// PgBouncer reports whether the pool was sized for an external
	// transaction pooler.
	PgBouncer bool
}

// Options controls pool construction.
type Options struct {
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	StatementTimeout time.Duration
	// UsePgBouncer forces pooler-friendly settings even when the DSN port
	// does not reveal the pooler.
	UsePgBouncer bool
	Metrics      observability.MetricsRegistry
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS tenants (
    tenant_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    subdomain TEXT NOT NULL UNIQUE,
    virtual_host TEXT,
    ad_server TEXT NOT NULL DEFAULT 'mock',
    human_review_required BOOLEAN NOT NULL DEFAULT FALSE,
    brand_manifest_policy TEXT,
    auto_approve_format_ids JSONB NOT NULL DEFAULT '[]',
    authorized_emails JSONB NOT NULL DEFAULT '[]',
    authorized_domains JSONB NOT NULL DEFAULT '[]',
    publisher_domains JSONB NOT NULL DEFAULT '[]',
    primary_channels JSONB NOT NULL DEFAULT '[]',
    primary_countries JSONB NOT NULL DEFAULT '[]',
    portfolio_description TEXT,
    advertising_policies TEXT,
    adapter_config JSONB NOT NULL DEFAULT '{}',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS principals (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    principal_id TEXT NOT NULL,
    name TEXT NOT NULL,
    access_token TEXT NOT NULL,
    platform_mappings JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, principal_id)
);

CREATE TABLE IF NOT EXISTS products (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    product_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    format_ids JSONB NOT NULL DEFAULT '[]',
    delivery_type TEXT NOT NULL DEFAULT 'non_guaranteed',
    pricing_options JSONB NOT NULL DEFAULT '[]',
    min_exposures BIGINT NOT NULL DEFAULT 0,
    is_custom BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMPTZ,
    inventory_profile_id TEXT,
    allowed_principal_ids JSONB NOT NULL DEFAULT '[]',
    implementation_config JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, product_id)
);

CREATE TABLE IF NOT EXISTS inventory_profiles (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    profile_id TEXT NOT NULL,
    name TEXT NOT NULL,
    ad_units JSONB NOT NULL DEFAULT '[]',
    placements JSONB NOT NULL DEFAULT '[]',
    properties JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, profile_id)
);

CREATE TABLE IF NOT EXISTS media_buys (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    media_buy_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    buyer_ref TEXT NOT NULL,
    status TEXT NOT NULL,
    promoted_offering TEXT,
    po_number TEXT,
    currency TEXT,
    budget JSONB,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ NOT NULL,
    packages JSONB NOT NULL DEFAULT '[]',
    adapter_order_id TEXT,
    raw_request JSONB,
    reporting_webhook JSONB,
    next_report_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, media_buy_id)
);

CREATE TABLE IF NOT EXISTS creatives (
    tenant_id TEXT NOT NULL REFERENCES tenants(tenant_id),
    creative_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    name TEXT NOT NULL,
    format_id JSONB NOT NULL,
    status TEXT NOT NULL,
    url TEXT,
    snippet TEXT,
    snippet_type TEXT,
    click_url TEXT,
    width INT NOT NULL DEFAULT 0,
    height INT NOT NULL DEFAULT 0,
    duration DOUBLE PRECISION NOT NULL DEFAULT 0,
    tags JSONB NOT NULL DEFAULT '[]',
    assets JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, creative_id)
);

CREATE TABLE IF NOT EXISTS creative_assignments (
    tenant_id TEXT NOT NULL,
    assignment_id TEXT NOT NULL,
    creative_id TEXT NOT NULL,
    media_buy_id TEXT NOT NULL,
    package_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, assignment_id)
);

CREATE TABLE IF NOT EXISTS creative_formats (
    agent_url TEXT NOT NULL,
    format_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    is_standard BOOLEAN NOT NULL DEFAULT TRUE,
    requirements JSONB NOT NULL DEFAULT '{}',
    assets_required JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (agent_url, format_id)
);

CREATE TABLE IF NOT EXISTS contexts (
    tenant_id TEXT NOT NULL,
    context_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, context_id)
);

CREATE TABLE IF NOT EXISTS tasks (
    tenant_id TEXT NOT NULL,
    task_id TEXT NOT NULL,
    context_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    skill TEXT NOT NULL,
    status TEXT NOT NULL,
    transport TEXT,
    request JSONB,
    result JSONB,
    error_message TEXT,
    push_config JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, task_id)
);

CREATE TABLE IF NOT EXISTS workflow_steps (
    tenant_id TEXT NOT NULL,
    step_id TEXT NOT NULL,
    task_id TEXT NOT NULL,
    step_type TEXT NOT NULL,
    status TEXT NOT NULL,
    comments JSONB NOT NULL DEFAULT '[]',
    object_mappings JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, step_id)
);

CREATE TABLE IF NOT EXISTS push_notification_configs (
    tenant_id TEXT NOT NULL,
    config_id TEXT NOT NULL,
    task_id TEXT NOT NULL,
    principal_id TEXT NOT NULL,
    url TEXT NOT NULL,
    token TEXT,
    auth_schemes JSONB NOT NULL DEFAULT '[]',
    credentials TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, config_id)
);

-- Lookup indexes
CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_token ON principals (access_token);
CREATE UNIQUE INDEX IF NOT EXISTS idx_media_buys_buyer_ref ON media_buys (tenant_id, principal_id, buyer_ref);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_unique ON creative_assignments (tenant_id, creative_id, media_buy_id, package_id);
CREATE INDEX IF NOT EXISTS idx_media_buys_status ON media_buys (tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_media_buys_next_report ON media_buys (next_report_at) WHERE next_report_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_creatives_principal ON creatives (tenant_id, principal_id);
CREATE INDEX IF NOT EXISTS idx_assignments_media_buy ON creative_assignments (tenant_id, media_buy_id);
CREATE INDEX IF NOT EXISTS idx_tasks_context ON tasks (tenant_id, context_id);
CREATE INDEX IF NOT EXISTS idx_push_configs_task ON push_notification_configs (tenant_id, task_id);
`

// pgBouncerPort is the conventional PgBouncer listen port. Detection parses
// the DSN as a URL so a password containing ":6543" cannot trigger a false
// positive.
const pgBouncerPort = "6543"

// DetectPgBouncer reports whether the DSN points at a PgBouncer pooler.
func DetectPgBouncer(dsn string, forced bool) bool {
	if forced {
		return true
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return false
	}
	return u.Port() == pgBouncerPort
}

// statementTimeoutConnector applies statement_timeout with SET on every new
// connection. PgBouncer's transaction pooling rejects startup parameters,
// so the timeout cannot ride on the DSN.
type statementTimeoutConnector struct {
	base    driver.Connector
	timeout time.Duration
}

func (c *statementTimeoutConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.base.Connect(ctx)
	if err != nil {
		return nil, err
	}
	execer, ok := conn.(driver.ExecerContext)
	if !ok {
		return conn, nil
	}
	stmt := fmt.Sprintf("SET statement_timeout = %d", c.timeout.Milliseconds())
	if _, err := execer.ExecContext(ctx, stmt, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set statement_timeout: %w", err)
	}
	return conn, nil
}

func (c *statementTimeoutConnector) Driver() driver.Driver { return c.base.Driver() }

// InitPostgres connects to Postgres, applies pooling configuration and
// ensures the schema. When the DSN targets PgBouncer the pool shrinks to a
// handful of connections with a short recycle, since the real pooling
// happens in the pooler.
func InitPostgres(dsn string, opts Options) (*Postgres, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connector: %w", err)
	}

	var wrapped driver.Connector = connector
	if opts.StatementTimeout > 0 {
		wrapped = &statementTimeoutConnector{base: connector, timeout: opts.StatementTimeout}
	}

	db := otelsql.OpenDB(wrapped,
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)

	pgBouncer := DetectPgBouncer(dsn, opts.UsePgBouncer)
	maxOpen := opts.MaxOpenConns
	maxIdle := opts.MaxIdleConns
	maxLifetime := opts.ConnMaxLifetime
	maxIdleTime := opts.ConnMaxIdleTime
	if pgBouncer {
		// Keep the local pool minimal; the pooler multiplexes server
		// connections and long-lived local ones pin them.
		maxOpen = 5
		maxIdle = 2
		maxLifetime = 30 * time.Second
		maxIdleTime = 10 * time.Second
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}

	p := &Postgres{DB: db, metrics: metrics, poolSize: maxOpen, maxIdle: maxIdle, PgBouncer: pgBouncer}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	if err := p.ensureCreativeFormats(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", maxOpen),
		zap.Int("max_idle_conns", maxIdle),
		zap.Duration("conn_max_lifetime", maxLifetime),
		zap.Bool("pgbouncer", pgBouncer))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ensureCreativeFormats seeds the standard format catalog if it is empty.
func (p *Postgres) ensureCreativeFormats() error {
	ctx := context.Background()
	var count int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM creative_formats`).Scan(&count); err != nil {
		return fmt.Errorf("count creative_formats: %w", err)
	}
	if count > 0 {
		return nil
	}
	formats := []adcp.Format{
		{FormatID: "display_300x250", Name: "Medium Rectangle", Type: adcp.FormatTypeDisplay,
			Requirements: map[string]any{"width": 300, "height": 250}},
		{FormatID: "display_728x90", Name: "Leaderboard", Type: adcp.FormatTypeDisplay,
			Requirements: map[string]any{"width": 728, "height": 90}},
		{FormatID: "display_320x50", Name: "Mobile Banner", Type: adcp.FormatTypeDisplay,
			Requirements: map[string]any{"width": 320, "height": 50}},
		{FormatID: "video_15s", Name: "15 Second Video", Type: adcp.FormatTypeVideo,
			Requirements: map[string]any{"duration_seconds": 15, "min_width": 640}},
		{FormatID: "video_30s", Name: "30 Second Video", Type: adcp.FormatTypeVideo,
			Requirements: map[string]any{"duration_seconds": 30, "min_width": 640}},
		{FormatID: "audio_30s", Name: "30 Second Audio Spot", Type: adcp.FormatTypeAudio,
			Requirements: map[string]any{"duration_seconds": 30}},
		{FormatID: "native_article", Name: "Native Article", Type: adcp.FormatTypeNative,
			AssetsRequired: []adcp.AssetRequirement{
				{AssetType: "headline", Quantity: 1, Requirements: map[string]any{"max_length": 80}},
				{AssetType: "image", Quantity: 1, Requirements: map[string]any{"min_width": 1200}},
			}},
		{FormatID: "dooh_billboard", Name: "Digital Billboard", Type: adcp.FormatTypeDOOH,
			Requirements: map[string]any{"width": 1920, "height": 1080}},
	}
	for _, f := range formats {
		f.AgentURL = adcp.DefaultFormatAgentURL
		f.IsStandard = true
		if err := p.InsertCreativeFormat(ctx, f); err != nil {
			return fmt.Errorf("seed format %s: %w", f.FormatID, err)
		}
	}
	return nil
}
