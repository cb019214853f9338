package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/analytics"
	"github.com/toller892/adcp-salesagent/internal/config"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// delivery_simulator writes impression, click and video completion events
// into ClickHouse for active media buys, so delivery queries and scheduled
// reports return live-looking numbers without a real ad server. Spend is
// derived from each package's pricing option.
var (
	tenantID   string
	mediaBuyID string
	interval   time.Duration
	duration   time.Duration
	impPerTick int
	clickRate  float64
	videoRate  float64
	backfill   time.Duration
	seedVal    int64
	debug      bool
	stats      bool
)

var logger *zap.Logger

const statsInterval = 5 * time.Second

var (
	countTicks  uint64
	countImps   uint64
	countClicks uint64
	countVideo  uint64
	countErrors uint64
)

func main() {
	flag.StringVar(&tenantID, "tenant", "", "only simulate buys of this tenant id")
	flag.StringVar(&mediaBuyID, "media-buy", "", "only simulate this media buy id")
	flag.DurationVar(&interval, "interval", 10*time.Second, "time between delivery ticks")
	flag.DurationVar(&duration, "duration", 0, "how long to run (0 for a single tick)")
	flag.IntVar(&impPerTick, "impressions", 500, "impressions per package per tick")
	flag.Float64Var(&clickRate, "click-rate", 0.01, "probability of a click per impression")
	flag.Float64Var(&videoRate, "video-rate", 0, "probability of a video completion per impression")
	flag.DurationVar(&backfill, "backfill", 0, "generate history this far back before the live ticks")
	flag.Int64Var(&seedVal, "seed", time.Now().UnixNano(), "rng seed")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "delivery-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, db.Options{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetime:  cfg.DBConnMaxLifetime,
		ConnMaxIdleTime:  cfg.DBConnMaxIdleTime,
		StatementTimeout: cfg.StatementTimeout,
		UsePgBouncer:     cfg.UsePgBouncer,
	})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pg.Close()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
	if err != nil {
		logger.Fatal("connect clickhouse", zap.Error(err))
	}
	defer analyticsSvc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		pg:        pg,
		analytics: analyticsSvc,
		r:         rand.New(rand.NewSource(seedVal)),
		rates:     make(map[string]float64),
	}

	buys, err := sim.loadBuys(ctx)
	if err != nil {
		logger.Fatal("load media buys", zap.Error(err))
	}
	if len(buys) == 0 {
		logger.Warn("no active media buys match, nothing to simulate")
		return
	}
	logger.Info("simulating delivery", zap.Int("media_buys", len(buys)),
		zap.Duration("interval", interval), zap.Duration("backfill", backfill))

	if backfill > 0 {
		for ts := time.Now().Add(-backfill); ts.Before(time.Now()); ts = ts.Add(interval) {
			sim.tick(ctx, buys, ts)
		}
		logger.Info("backfill complete", zap.Duration("window", backfill))
	}

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	start := time.Now()
	sim.tick(ctx, buys, time.Now())

	if duration > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				if time.Since(start) >= duration {
					break loop
				}
				// Reload so newly activated buys join the simulation.
				if fresh, err := sim.loadBuys(ctx); err != nil {
					logger.Error("reload media buys", zap.Error(err))
				} else {
					buys = fresh
				}
				sim.tick(ctx, buys, time.Now())
			}
		}
	}

	printStats()
}

type simulator struct {
	pg        *db.Postgres
	analytics *analytics.Analytics
	r         *rand.Rand
	// rates caches CPM per (tenant, product, pricing option).
	rates map[string]float64
}

// loadBuys returns the active buys the flags select.
func (s *simulator) loadBuys(ctx context.Context) ([]models.MediaBuy, error) {
	all, err := s.pg.MediaBuysByStatus(ctx, adcp.StatusActive)
	if err != nil {
		return nil, err
	}
	buys := all[:0]
	for _, b := range all {
		if tenantID != "" && b.TenantID != tenantID {
			continue
		}
		if mediaBuyID != "" && b.MediaBuyID != mediaBuyID {
			continue
		}
		buys = append(buys, b)
	}
	return buys, nil
}

// tick writes one round of events for every in-flight package.
func (s *simulator) tick(ctx context.Context, buys []models.MediaBuy, now time.Time) {
	atomic.AddUint64(&countTicks, 1)
	for i := range buys {
		b := &buys[i]
		if now.Before(b.StartTime) || now.After(b.EndTime) {
			continue
		}
		for _, pkg := range b.Packages {
			if pkg.Paused {
				continue
			}
			s.deliverPackage(ctx, b, pkg, now)
		}
	}
}

func (s *simulator) deliverPackage(ctx context.Context, b *models.MediaBuy, pkg models.Package, now time.Time) {
	imps := int64(float64(impPerTick) * (0.5 + s.r.Float64()))
	if imps <= 0 {
		return
	}
	cpm := s.cpmFor(ctx, b.TenantID, pkg)
	ev := analytics.DeliveryEvent{
		Timestamp:   now,
		TenantID:    b.TenantID,
		MediaBuyID:  b.MediaBuyID,
		PackageID:   pkg.PackageID,
		EventType:   analytics.EventImpression,
		Impressions: imps,
		Spend:       float64(imps) / 1000 * cpm,
	}
	if err := s.analytics.RecordDelivery(ctx, ev); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("record impressions", zap.Error(err), zap.String("media_buy_id", b.MediaBuyID))
		return
	}
	atomic.AddUint64(&countImps, uint64(imps))
	logger.Debug("delivered", zap.String("media_buy_id", b.MediaBuyID),
		zap.String("package_id", pkg.PackageID), zap.Int64("impressions", imps), zap.Float64("spend", ev.Spend))

	s.recordEngagement(ctx, b, pkg, now, imps, clickRate, analytics.EventClick, &countClicks)
	s.recordEngagement(ctx, b, pkg, now, imps, videoRate, analytics.EventVideoComplete, &countVideo)
}

// recordEngagement writes one row per engagement event; the aggregation
// queries count rows, not the impressions column.
func (s *simulator) recordEngagement(ctx context.Context, b *models.MediaBuy, pkg models.Package, now time.Time, imps int64, rate float64, eventType string, counter *uint64) {
	if rate <= 0 {
		return
	}
	n := int64(float64(imps) * rate * (0.5 + s.r.Float64()))
	for i := int64(0); i < n; i++ {
		ev := analytics.DeliveryEvent{
			Timestamp:  now.Add(time.Duration(s.r.Intn(int(interval/time.Millisecond)+1)) * time.Millisecond),
			TenantID:   b.TenantID,
			MediaBuyID: b.MediaBuyID,
			PackageID:  pkg.PackageID,
			EventType:  eventType,
		}
		if err := s.analytics.RecordDelivery(ctx, ev); err != nil {
			atomic.AddUint64(&countErrors, 1)
			logger.Error("record engagement", zap.Error(err), zap.String("event_type", eventType))
			return
		}
		atomic.AddUint64(counter, 1)
	}
}

// cpmFor resolves the effective CPM of a package: the fixed rate when the
// pricing option has one, the P50 guidance for auction options, then a
// fallback so simulation never stalls on incomplete catalogs.
func (s *simulator) cpmFor(ctx context.Context, tenant string, pkg models.Package) float64 {
	key := tenant + "/" + pkg.ProductID + "/" + pkg.PricingOptionID
	if v, ok := s.rates[key]; ok {
		return v
	}
	cpm := 3.0
	if product, err := s.pg.GetProduct(ctx, tenant, pkg.ProductID); err == nil {
		if opt := product.PricingOption(pkg.PricingOptionID); opt != nil {
			switch {
			case opt.Rate > 0:
				cpm = opt.Rate
			case opt.PriceGuidance != nil && opt.PriceGuidance.P50 > 0:
				cpm = opt.PriceGuidance.P50
			}
		}
	}
	s.rates[key] = cpm
	return cpm
}

func printStats() {
	logger.Info("stats",
		zap.Uint64("ticks", atomic.LoadUint64(&countTicks)),
		zap.Uint64("impressions", atomic.LoadUint64(&countImps)),
		zap.Uint64("clicks", atomic.LoadUint64(&countClicks)),
		zap.Uint64("video_completions", atomic.LoadUint64(&countVideo)),
		zap.Uint64("errors", atomic.LoadUint64(&countErrors)))
}
