package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// AgentName and AgentVersion populate the agent card.
	AgentName    string
	AgentVersion string
	// BaseHost is the apex host the agent is served under. Subdomain tenant
	// routing strips it when present.
	BaseHost string

	PostgresDSN   string
	RedisAddr     string
	ClickHouseDSN string

	// UsePgBouncer forces PgBouncer connection settings even when the DSN
	// port does not reveal it.
	UsePgBouncer     bool
	StatementTimeout time.Duration

	// Database connection pooling configuration.
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// ClickHouse connection pooling configuration.
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration

	// Scheduler configuration.
	StatusCheckInterval    time.Duration
	DeliveryReportInterval time.Duration
	// WebhookLocalhostRewrite replaces localhost webhook hosts so containers
	// can reach services on the host machine. Empty disables the rewrite.
	WebhookLocalhostRewrite string
	WebhookTimeout          time.Duration

	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int

	// Product ranking service (external LLM helper).
	RankerEnabled  bool
	RankerURL      string
	RankerTimeout  time.Duration
	RankerCacheTTL time.Duration

	// Tracing configuration.
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8080")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 10*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "adcp-sales-agent")
	cfg.AgentName = getenv("AGENT_NAME", "AdCP Sales Agent")
	cfg.AgentVersion = getenv("AGENT_VERSION", "1.0.0")
	cfg.BaseHost = getenv("BASE_HOST", "localhost")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")

	cfg.UsePgBouncer = envBool("USE_PGBOUNCER", false)
	cfg.StatementTimeout = envDuration("STATEMENT_TIMEOUT", 30*time.Second)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 50)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 10)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.StatusCheckInterval = envDuration("STATUS_CHECK_INTERVAL", time.Minute)
	cfg.DeliveryReportInterval = envDuration("DELIVERY_REPORT_INTERVAL", 10*time.Minute)
	cfg.WebhookLocalhostRewrite = getenv("WEBHOOK_LOCALHOST_REWRITE", "host.docker.internal")
	cfg.WebhookTimeout = envDuration("WEBHOOK_TIMEOUT", 5*time.Second)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 100)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 10)

	cfg.RankerEnabled = envBool("RANKER_ENABLED", false)
	cfg.RankerURL = getenv("RANKER_URL", "http://localhost:8000")
	cfg.RankerTimeout = envDuration("RANKER_TIMEOUT", 2*time.Second)
	cfg.RankerCacheTTL = envDuration("RANKER_CACHE_TTL", 5*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
