package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/toller892/adcp-salesagent/internal/adapters"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/auth"
	"github.com/toller892/adcp-salesagent/internal/config"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/mcpserver"
	"github.com/toller892/adcp-salesagent/internal/observability"
	"github.com/toller892/adcp-salesagent/internal/skills"
	"go.uber.org/zap"
)

// mcp-server exposes the sales agent's skills over stdio for MCP clients
// that spawn the agent as a subprocess. Unlike the HTTP server, a stdio
// session runs under one fixed identity configured through the environment:
//
//	ADCP_AUTH_TOKEN  bearer token of the principal the session acts as
//	ADCP_TENANT      tenant subdomain or id, when the token alone is not
//	                 enough (for example anonymous discovery)
//	ADCP_HOST        host to resolve the tenant from, as if the request
//	                 had arrived over HTTP with that Host header
func main() {
	cfg := config.Load()

	// zap's production config writes to stderr, which keeps stdout clean
	// for the MCP transport.
	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() { _ = logger.Sync() }()

	if err := run(logger, cfg); err != nil {
		logger.Error("mcp server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
	if err != nil {
		logger.Warn("ClickHouse unavailable, delivery reporting degraded", zap.Error(err))
		analyticsSvc = nil
	}
	defer analyticsSvc.Close()

	adapterReg := adapters.NewRegistry(analyticsSvc, metricsRegistry)

	// No rate limiter and no ranker: a stdio session serves one local
	// client, and ranking needs the external service the HTTP deployment
	// runs next to.
	registry := skills.NewRegistry(nil, metricsRegistry, logger)
	registry.Register(skills.NewGetProducts(pg, nil))
	registry.Register(skills.NewListCreativeFormats(pg))
	registry.Register(skills.NewListAuthorizedProperties(pg))
	registry.Register(skills.NewCreateMediaBuy(pg, adapterReg))
	registry.Register(skills.NewUpdateMediaBuy(pg, adapterReg))
	registry.Register(skills.NewGetMediaBuyDelivery(pg, adapterReg, nil))
	registry.Register(skills.NewUpdatePerformanceIndex(pg, adapterReg))
	registry.Register(skills.NewSyncCreatives(pg, adapterReg))
	registry.Register(skills.NewListCreatives(pg))

	resolver := auth.NewResolver(pg, cfg.BaseHost)
	authenticator := auth.NewAuthenticator(pg, metricsRegistry)

	srv := mcpserver.New(registry, resolver, authenticator, cfg.AgentName, cfg.AgentVersion, logger)
	headers := stdioHeaders(cfg)

	logger.Info("MCP server running via stdio",
		zap.String("host", headers.Host),
		zap.String("tenant", headers.Get(auth.HeaderTenant)),
		zap.Bool("authenticated", auth.BearerToken(headers) != ""))

	var transport mcp.Transport = &mcp.StdioTransport{}
	var logBuffer bytes.Buffer
	if os.Getenv("MCP_DEBUG") != "" {
		transport = &mcp.LoggingTransport{Transport: transport, Writer: &logBuffer}
	}

	if err := srv.ServerFor(headers).Run(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
		if logBuffer.Len() > 0 {
			logger.Error("mcp traffic before failure", zap.String("mcp_logs", logBuffer.String()))
		}
		return err
	}
	return nil
}

// stdioHeaders builds the fixed identity a stdio session runs under. The
// environment stands in for the HTTP headers the resolver and authenticator
// normally read.
func stdioHeaders(cfg config.Config) auth.Headers {
	host := os.Getenv("ADCP_HOST")
	if host == "" {
		host = cfg.BaseHost
	}
	kv := make(map[string]string)
	if v := os.Getenv("ADCP_TENANT"); v != "" {
		kv[auth.HeaderTenant] = v
	}
	if v := os.Getenv("ADCP_AUTH_TOKEN"); v != "" {
		kv[auth.HeaderAuthToken] = v
	}
	return auth.NewHeaders(host, kv)
}
