// Package ranker orders product candidates against a buyer brief by calling
// an external ranking service. The service is optional; when it is absent or
// failing the client degrades to the input order so get_products never
// depends on it.
package ranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/observability"
)

// Candidate is the slice of a product the ranking service sees. Pricing and
// principal restrictions never leave the process.
type Candidate struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RankRequest is the payload posted to the ranking service.
type RankRequest struct {
	Brief            string      `json:"brief"`
	PromotedOffering string      `json:"promoted_offering,omitempty"`
	Products         []Candidate `json:"products"`
}

// RankResponse is the service's ordered verdict. Products absent from the
// list keep their original relative order behind the ranked ones.
type RankResponse struct {
	ProductIDs []string `json:"product_ids"`
}

type cachedRanking struct {
	ids       []string
	timestamp time.Time
	ttl       time.Duration
}

func (c *cachedRanking) expired() bool {
	return time.Since(c.timestamp) > c.ttl
}

// Client talks to the ranking service with a bounded timeout and caches
// verdicts per (brief, candidate set).
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedRanking
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

func NewClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string]*cachedRanking),
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

// Enabled reports whether a ranking service is configured at all.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) cacheKey(brief string, candidates []Candidate) string {
	ids := make([]string, len(candidates))
	for i, p := range candidates {
		ids[i] = p.ProductID
	}
	return brief + "|" + strings.Join(ids, ",")
}

// Rank returns the candidate product ids ranked against the brief. The
// returned slice always contains every input id exactly once; on any failure
// the input order comes back unchanged.
func (c *Client) Rank(ctx context.Context, brief, promotedOffering string, candidates []Candidate) []string {
	neutral := make([]string, len(candidates))
	for i, p := range candidates {
		neutral[i] = p.ProductID
	}
	if !c.Enabled() || brief == "" || len(candidates) < 2 {
		return neutral
	}

	key := c.cacheKey(brief, candidates)
	c.cacheMu.RLock()
	cached, ok := c.cache[key]
	c.cacheMu.RUnlock()
	if ok && !cached.expired() {
		return mergeRanking(cached.ids, neutral)
	}

	ranked, err := c.callRankService(ctx, &RankRequest{
		Brief:            brief,
		PromotedOffering: promotedOffering,
		Products:         candidates,
	})
	if err != nil {
		c.logger.Warn("Ranking service unavailable, keeping catalog order",
			zap.Error(err),
			zap.Int("candidates", len(candidates)))
		return neutral
	}

	c.cacheMu.Lock()
	c.cache[key] = &cachedRanking{ids: ranked, timestamp: time.Now(), ttl: c.cacheTTL}
	c.cacheMu.Unlock()

	return mergeRanking(ranked, neutral)
}

// mergeRanking applies the service ordering while guaranteeing that every
// candidate survives: unknown ids from the service are dropped, candidates
// the service skipped trail in their original order.
func mergeRanking(ranked, all []string) []string {
	known := make(map[string]bool, len(all))
	for _, id := range all {
		known[id] = true
	}
	out := make([]string, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, id := range ranked {
		if known[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, id := range all {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func (c *Client) callRankService(ctx context.Context, req *RankRequest) ([]string, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordRankerLatency(time.Since(start))
		c.metrics.IncrementRankerRequests(outcome)
	}()

	body, err := json.Marshal(req)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rank", bytes.NewReader(body))
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var out RankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.ProductIDs, nil
}

// HealthCheck probes the ranking service.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// ClearCache drops every cached verdict.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]*cachedRanking)
}
