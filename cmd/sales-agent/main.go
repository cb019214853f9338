package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/api"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/config"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/mcpserver"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/ranker"
	"github.com/toller892/adcp-salesagent/internal/ratelimit"
	"github.com/toller892/adcp-salesagent/internal/skills"
	"github.com/toller892/adcp-salesagent/internal/tasks"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdownTracing, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.AgentVersion, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdownTracing()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	pg, err := db.InitPostgres(cfg.PostgresDSN, db.Options{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetime:  cfg.DBConnMaxLifetime,
		ConnMaxIdleTime:  cfg.DBConnMaxIdleTime,
		StatementTimeout: cfg.StatementTimeout,
		UsePgBouncer:     cfg.UsePgBouncer,
		Metrics:          metricsRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	// Redis coordinates schedulers across instances. A single instance runs
	// fine without it, so a missing Redis only downgrades.
	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Warn("Redis unavailable, running without cross-instance coordination", zap.Error(err))
		redisStore = nil
	}
	defer redisStore.Close()

	// ClickHouse backs delivery reporting. Without it the agent still books
	// media buys; delivery queries report the backend as unavailable.
	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
	if err != nil {
		logger.Warn("ClickHouse unavailable, delivery reporting degraded", zap.Error(err))
		analyticsSvc = nil
	} else {
		analyticsSvc.DB.SetMaxOpenConns(cfg.CHMaxOpenConns)
		analyticsSvc.DB.SetMaxIdleConns(cfg.CHMaxIdleConns)
		analyticsSvc.DB.SetConnMaxLifetime(cfg.CHConnMaxLifetime)
		analyticsSvc.DB.SetConnMaxIdleTime(cfg.CHConnMaxIdleTime)
	}
	defer analyticsSvc.Close()

	adapterReg := adapters.NewRegistry(analyticsSvc, metricsRegistry)

	rateLimiter := ratelimit.NewPrincipalLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	var productRanker *ranker.Client
	if cfg.RankerEnabled {
		productRanker = ranker.NewClient(cfg.RankerURL, cfg.RankerTimeout, cfg.RankerCacheTTL, logger, metricsRegistry)
		logger.Info("Product ranking enabled",
			zap.String("ranker_url", cfg.RankerURL),
			zap.Duration("timeout", cfg.RankerTimeout),
			zap.Duration("cache_ttl", cfg.RankerCacheTTL))
	}

	registry := skills.NewRegistry(rateLimiter, metricsRegistry, logger)
	registry.Register(skills.NewGetProducts(pg, productRanker))
	registry.Register(skills.NewListCreativeFormats(pg))
	registry.Register(skills.NewListAuthorizedProperties(pg))
	registry.Register(skills.NewCreateMediaBuy(pg, adapterReg))
	registry.Register(skills.NewUpdateMediaBuy(pg, adapterReg))
	registry.Register(skills.NewGetMediaBuyDelivery(pg, adapterReg, redisStore))
	registry.Register(skills.NewUpdatePerformanceIndex(pg, adapterReg))
	registry.Register(skills.NewSyncCreatives(pg, adapterReg))
	registry.Register(skills.NewListCreatives(pg))

	sender := tasks.NewSender(cfg.WebhookTimeout, cfg.WebhookLocalhostRewrite, metricsRegistry)
	taskSvc := tasks.NewService(pg, sender, metricsRegistry)

	go tasks.NewStatusScheduler(pg, metricsRegistry, cfg.StatusCheckInterval).Run(ctx)
	go tasks.NewReportScheduler(pg, adapterReg, sender, redisStore, metricsRegistry, cfg.DeliveryReportInterval).Run(ctx)

	resolver := auth.NewResolver(pg, cfg.BaseHost)
	authenticator := auth.NewAuthenticator(pg, metricsRegistry)

	srvDeps := api.NewServer(logger, pg, registry, taskSvc, resolver, authenticator, adapterReg, redisStore, pg, metricsRegistry, cfg)
	r := srvDeps.Routes()

	// The MCP transport shares the skill registry with A2A. The SSE handler
	// serves both the event stream and its message endpoint on this path.
	mcpSrv := mcpserver.New(registry, resolver, authenticator, cfg.AgentName, cfg.AgentVersion, logger)
	r.Handle("/mcp", mcpSrv.Handler())

	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port

	// otelhttp opens the server span the request logger middleware reads
	// its trace ids from.
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "sales-agent"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Sales agent running",
		zap.String("addr", addr),
		zap.String("base_host", cfg.BaseHost),
		zap.Bool("pgbouncer", pg.PgBouncer))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
