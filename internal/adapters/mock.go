package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

// simulatedCPM prices simulated delivery when no real events exist. One
// thousand impressions per ten currency units keeps the numbers legible.
const simulatedCPM = 10.0

const simulatedCTR = 0.01

// ProvisionedOrder is the in-memory record of a provisioned buy. ImplConfig
// keeps the per-package placement configuration exactly as it was resolved
// at provisioning time.
type ProvisionedOrder struct {
	OrderID    string
	MediaBuyID string
	// AdvertiserID comes from the principal's platform mapping. Empty when
	// the buyer has no mock identity configured.
	AdvertiserID string
	Status       string
	LineItems    []LineItem
	ImplConfig   map[string]json.RawMessage
	Creatives    map[string]string
	Perf         map[string]float64
}

// Mock is the in-process ad server. It provisions orders into an in-memory
// map, reports delivery from analytics when events exist, and falls back to
// pro-rata simulation otherwise. Safe for concurrent use.
type Mock struct {
	mu             sync.RWMutex
	tenantID       string
	manualApproval bool
	analytics      analytics.AnalyticsService
	metrics        observability.MetricsRegistry
	orders         map[string]*ProvisionedOrder
	now            func() time.Time
}

func NewMock(tenant *models.Tenant, svc analytics.AnalyticsService, metrics observability.MetricsRegistry) *Mock {
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	m := &Mock{
		tenantID:  tenant.TenantID,
		analytics: svc,
		metrics:   metrics,
		orders:    make(map[string]*ProvisionedOrder),
		now:       time.Now,
	}
	m.Reconfigure(tenant)
	return m
}

// Reconfigure re-reads adapter settings from the tenant. Order state is kept.
func (m *Mock) Reconfigure(tenant *models.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualApproval = configBool(tenant.AdapterConfig, "manual_approval_required")
}

func configBool(cfg map[string]any, key string) bool {
	if cfg == nil {
		return false
	}
	v, ok := cfg[key].(bool)
	return ok && v
}

func (m *Mock) Name() string { return models.AdServerMock }

func (m *Mock) ManualApprovalRequired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.manualApproval
}

// CreateMediaBuy provisions one line item per package. Buys whose flight has
// not started come back pending_activation; the status scheduler activates
// them later.
func (m *Mock) CreateMediaBuy(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	buy := req.MediaBuy
	if len(buy.Packages) == 0 {
		m.metrics.IncrementAdapterCalls(m.Name(), "create_media_buy", "error")
		return nil, fmt.Errorf("media buy %s has no packages", buy.MediaBuyID)
	}
	var advertiserID string
	if req.Principal != nil {
		mapping, err := req.Principal.AdapterMapping(m.Name())
		if err != nil {
			m.metrics.IncrementAdapterCalls(m.Name(), "create_media_buy", "error")
			return nil, err
		}
		advertiserID, _ = mapping["advertiser_id"].(string)
	}

	now := m.now().UTC()
	status := adcp.StatusActive
	if buy.StartTime.After(now) {
		status = adcp.StatusPendingActivation
	}

	order := &ProvisionedOrder{
		OrderID:      "mock-order-" + uuid.NewString()[:8],
		MediaBuyID:   buy.MediaBuyID,
		AdvertiserID: advertiserID,
		Status:       status,
		ImplConfig:   make(map[string]json.RawMessage, len(req.ImplementationConfig)),
		Creatives:    make(map[string]string),
		Perf:         make(map[string]float64),
	}
	for pkgID, cfg := range req.ImplementationConfig {
		order.ImplConfig[pkgID] = cfg
	}
	for _, p := range buy.Packages {
		order.LineItems = append(order.LineItems, LineItem{
			PackageID:  p.PackageID,
			LineItemID: "mock-li-" + uuid.NewString()[:8],
			Status:     status,
		})
	}

	m.mu.Lock()
	m.orders[buy.MediaBuyID] = order
	m.mu.Unlock()

	zap.L().Info("Mock adapter provisioned order",
		zap.String("tenant_id", m.tenantID),
		zap.String("media_buy_id", buy.MediaBuyID),
		zap.String("order_id", order.OrderID),
		zap.String("advertiser_id", order.AdvertiserID),
		zap.Int("line_items", len(order.LineItems)))
	m.metrics.IncrementAdapterCalls(m.Name(), "create_media_buy", "ok")

	return &CreateResult{
		OrderID:   order.OrderID,
		Status:    status,
		LineItems: append([]LineItem(nil), order.LineItems...),
	}, nil
}

// UpdateMediaBuy applies the already-mutated buy to the order record. Orders
// unknown to this process (created before a restart) are re-provisioned so
// updates never strand a persisted buy.
func (m *Mock) UpdateMediaBuy(ctx context.Context, req *UpdateRequest) (*UpdateResult, error) {
	buy := req.MediaBuy

	m.mu.Lock()
	order, ok := m.orders[buy.MediaBuyID]
	if !ok {
		order = &ProvisionedOrder{
			OrderID:    buy.AdapterOrderID,
			MediaBuyID: buy.MediaBuyID,
			Creatives:  make(map[string]string),
			Perf:       make(map[string]float64),
		}
		if order.OrderID == "" {
			order.OrderID = "mock-order-" + uuid.NewString()[:8]
		}
		m.orders[buy.MediaBuyID] = order
	}
	order.Status = buy.Status
	order.LineItems = order.LineItems[:0]
	for _, p := range buy.Packages {
		status := adcp.StatusActive
		if p.Paused {
			status = adcp.StatusPaused
		}
		order.LineItems = append(order.LineItems, LineItem{
			PackageID:  p.PackageID,
			LineItemID: "mock-li-" + uuid.NewString()[:8],
			Status:     status,
		})
	}
	m.mu.Unlock()

	m.metrics.IncrementAdapterCalls(m.Name(), "update_media_buy", "ok")
	impl := m.now().UTC()
	return &UpdateResult{
		Status:             "accepted",
		AffectedPackages:   append([]string(nil), req.AffectedPackages...),
		ImplementationDate: &impl,
	}, nil
}

// GetDelivery reports real analytics totals when events exist for the window
// and falls back to pro-rata simulation otherwise, so fresh installs still
// see plausible numbers.
func (m *Mock) GetDelivery(ctx context.Context, req *DeliveryRequest) (*DeliveryResult, error) {
	buy := req.MediaBuy

	totals, err := m.analyticsTotals(ctx, req)
	if err == nil && (totals.Totals.Impressions > 0 || totals.Totals.Spend > 0) {
		m.metrics.IncrementAdapterCalls(m.Name(), "get_delivery", "ok")
		return totals, nil
	}
	if err != nil && !errors.Is(err, analytics.ErrUnavailable) {
		m.metrics.IncrementAdapterCalls(m.Name(), "get_delivery", "error")
		return nil, err
	}

	asOf := req.End
	if asOf.IsZero() {
		asOf = m.now().UTC()
	}
	m.metrics.IncrementAdapterCalls(m.Name(), "get_delivery", "simulated")
	return m.simulateDelivery(buy, asOf), nil
}

func (m *Mock) analyticsTotals(ctx context.Context, req *DeliveryRequest) (*DeliveryResult, error) {
	if m.analytics == nil {
		return nil, analytics.ErrUnavailable
	}
	mt, err := m.analytics.MediaBuyTotals(ctx, m.tenantID, req.MediaBuy.MediaBuyID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	pt, err := m.analytics.PackageTotals(ctx, m.tenantID, req.MediaBuy.MediaBuyID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	out := &DeliveryResult{Totals: adcp.DeliveryTotals{
		Impressions: mt.Impressions,
		Spend:       mt.Spend,
		Clicks:      mt.Clicks,
		Completions: mt.VideoCompletions,
	}}
	for _, p := range req.MediaBuy.Packages {
		t, ok := pt[p.PackageID]
		if !ok {
			continue
		}
		out.ByPackage = append(out.ByPackage, adcp.PackageDelivery{
			PackageID: p.PackageID,
			BuyerRef:  p.BuyerRef,
			Totals: adcp.DeliveryTotals{
				Impressions: t.Impressions,
				Spend:       t.Spend,
				Clicks:      t.Clicks,
				Completions: t.VideoCompletions,
			},
			PerformanceIndex: p.PerformanceIndex,
		})
	}
	return out, nil
}

// simulateDelivery prices flight progress through asOf against package
// budgets. Paused packages report zero; the simulation keeps no history to
// freeze.
func (m *Mock) simulateDelivery(buy *models.MediaBuy, asOf time.Time) *DeliveryResult {
	progress := buy.FlightProgress(asOf)
	out := &DeliveryResult{}
	for _, p := range buy.Packages {
		var spend float64
		if !p.Paused && p.Budget != nil {
			spend = p.Budget.Total * progress
		}
		if !p.Paused && spend == 0 && buy.Budget != nil && len(buy.Packages) > 0 {
			spend = buy.Budget.Total * progress / float64(len(buy.Packages))
		}
		impressions := int64(math.Round(spend / simulatedCPM * 1000))
		pd := adcp.PackageDelivery{
			PackageID: p.PackageID,
			BuyerRef:  p.BuyerRef,
			Totals: adcp.DeliveryTotals{
				Impressions: impressions,
				Spend:       math.Round(spend*100) / 100,
				Clicks:      int64(float64(impressions) * simulatedCTR),
			},
			PerformanceIndex: p.PerformanceIndex,
		}
		out.ByPackage = append(out.ByPackage, pd)
		out.Totals.Impressions += pd.Totals.Impressions
		out.Totals.Spend += pd.Totals.Spend
		out.Totals.Clicks += pd.Totals.Clicks
	}
	out.Totals.Spend = math.Round(out.Totals.Spend*100) / 100
	return out
}

// SyncCreatives accepts every creative that carries a renderable asset and
// records its status on any order the assignments touch.
func (m *Mock) SyncCreatives(ctx context.Context, req *SyncRequest) ([]CreativeResult, error) {
	assigned := make(map[string][]string)
	for _, a := range req.Assignments {
		assigned[a.CreativeID] = append(assigned[a.CreativeID], a.MediaBuyID)
	}

	var results []CreativeResult
	m.mu.Lock()
	for _, c := range req.Creatives {
		res := CreativeResult{CreativeID: c.CreativeID, Status: c.Status}
		if c.URL == "" && c.Snippet == "" && len(c.Assets) == 0 {
			res.Status = adcp.CreativeStatusRejected
			res.Errors = append(res.Errors, "creative has no renderable asset")
		}
		for _, buyID := range assigned[c.CreativeID] {
			if order, ok := m.orders[buyID]; ok {
				order.Creatives[c.CreativeID] = res.Status
			}
		}
		results = append(results, res)
	}
	m.mu.Unlock()

	m.metrics.IncrementAdapterCalls(m.Name(), "sync_creatives", "ok")
	return results, nil
}

// UpdatePerformanceIndex stores the indices on the order record.
func (m *Mock) UpdatePerformanceIndex(ctx context.Context, mediaBuyID string, perf []adcp.PackagePerformance) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[mediaBuyID]
	if !ok {
		return false, nil
	}
	for _, p := range perf {
		order.Perf[p.PackageID] = p.PerformanceIndex
	}
	m.metrics.IncrementAdapterCalls(m.Name(), "update_performance_index", "ok")
	return true, nil
}

// Order returns a copy of the provisioned order for debugging and tests.
func (m *Mock) Order(mediaBuyID string) (ProvisionedOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[mediaBuyID]
	if !ok {
		return ProvisionedOrder{}, false
	}
	out := *order
	out.LineItems = append([]LineItem(nil), order.LineItems...)
	out.ImplConfig = make(map[string]json.RawMessage, len(order.ImplConfig))
	for k, v := range order.ImplConfig {
		out.ImplConfig[k] = v
	}
	out.Creatives = make(map[string]string, len(order.Creatives))
	for k, v := range order.Creatives {
		out.Creatives[k] = v
	}
	out.Perf = make(map[string]float64, len(order.Perf))
	for k, v := range order.Perf {
		out.Perf[k] = v
	}
	return out, true
}
