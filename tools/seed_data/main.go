package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/config"
	"github.com/toller892/adcp-salesagent/internal/db"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

var (
	tenantCount   = flag.Int("tenants", 0, "extra random tenants beyond the demo tenant")
	principalsPer = flag.Int("principals", 2, "principals per tenant")
	productsPer   = flag.Int("products", 6, "products per tenant")
	seed          = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

// seed_data populates Postgres with a demo tenant plus optional random
// tenants so the agent can be exercised without hand-writing rows. The demo
// tenant uses fixed ids and a fixed token, so curl examples in the docs
// keep working across reseeds. The standard creative format catalog is
// seeded by the schema setup itself.
func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
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
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	r := rand.New(rand.NewSource(*seed))

	if _, err := pg.GetTenantBySubdomain(ctx, "demo"); errors.Is(err, models.ErrNotFound) {
		if err := seedDemoTenant(ctx, pg); err != nil {
			logger.Fatal("seed demo tenant", zap.Error(err))
		}
		fmt.Println("demo tenant created: subdomain=demo token=demo-buyer-token")
	} else if err != nil {
		logger.Fatal("check demo tenant", zap.Error(err))
	}

	for i := 0; i < *tenantCount; i++ {
		t := randomTenant(r)
		if err := pg.InsertTenant(ctx, t); err != nil {
			logger.Fatal("insert tenant", zap.Error(err))
		}

		for j := 0; j < *principalsPer; j++ {
			p := randomPrincipal(r, t.TenantID)
			if err := pg.InsertPrincipal(ctx, p); err != nil {
				logger.Fatal("insert principal", zap.Error(err))
			}
			fmt.Printf("tenant=%s principal=%s token=%s\n", t.Subdomain, p.Name, p.AccessToken)
		}

		profile := randomProfile(r, t)
		if err := pg.InsertInventoryProfile(ctx, profile); err != nil {
			logger.Fatal("insert inventory profile", zap.Error(err))
		}

		for j := 0; j < *productsPer; j++ {
			p := randomProduct(r, t.TenantID, profile.ProfileID)
			if err := pg.InsertProduct(ctx, p); err != nil {
				logger.Fatal("insert product", zap.Error(err))
			}
		}
	}

	fmt.Println("seed data inserted")
}

// seedDemoTenant creates the fixed demo tenant: two principals (one with a
// mock advertiser mapping, one without), an inventory profile spanning two
// properties, and a small catalog covering guaranteed and auction pricing.
func seedDemoTenant(ctx context.Context, pg *db.Postgres) error {
	tenant := &models.Tenant{
		TenantID:  "tenant_demo",
		Name:      "Demo Publisher",
		Subdomain: "demo",
		AdServer:  models.AdServerMock,
		AutoApproveFormatIDs: []adcp.FormatRef{
			{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"},
			{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_728x90"},
		},
		PublisherDomains:     []string{"demo.example.com"},
		PrimaryChannels:      []string{"display", "video"},
		PrimaryCountries:     []string{"US"},
		PortfolioDescription: "Demo news and lifestyle properties",
		IsActive:             true,
	}
	if err := pg.InsertTenant(ctx, tenant); err != nil {
		return fmt.Errorf("demo tenant: %w", err)
	}

	buyer := &models.Principal{
		TenantID:    tenant.TenantID,
		PrincipalID: "prn_demo_buyer",
		Name:        "Demo Buyer",
		AccessToken: "demo-buyer-token",
		PlatformMappings: map[string]json.RawMessage{
			models.AdServerMock: json.RawMessage(`{"advertiser_id":"demo-adv-1"}`),
		},
	}
	if err := pg.InsertPrincipal(ctx, buyer); err != nil {
		return fmt.Errorf("demo buyer: %w", err)
	}

	unmapped := &models.Principal{
		TenantID:         tenant.TenantID,
		PrincipalID:      "prn_demo_unmapped",
		Name:             "Unmapped Buyer",
		AccessToken:      "demo-unmapped-token",
		PlatformMappings: map[string]json.RawMessage{},
	}
	if err := pg.InsertPrincipal(ctx, unmapped); err != nil {
		return fmt.Errorf("demo unmapped buyer: %w", err)
	}

	profile := &models.InventoryProfile{
		TenantID:  tenant.TenantID,
		ProfileID: "prof_demo_ros",
		Name:      "Run of Site",
		AdUnits:   []string{"/demo/homepage", "/demo/article"},
		Properties: []adcp.Property{
			{
				PropertyID:   "prop_demo_site",
				PropertyType: "website",
				Name:         "Demo Publisher",
				Identifiers: []adcp.PropertyIdentifier{
					{Type: "domain", Value: "demo.example.com"},
				},
				PublisherDomain: "demo.example.com",
			},
			{
				PropertyID:   "prop_demo_app",
				PropertyType: "mobile_app",
				Name:         "Demo Publisher App",
				Identifiers: []adcp.PropertyIdentifier{
					{Type: "bundle_id", Value: "com.example.demo"},
				},
				PublisherDomain: "demo.example.com",
			},
		},
	}
	if err := pg.InsertInventoryProfile(ctx, profile); err != nil {
		return fmt.Errorf("demo profile: %w", err)
	}

	products := []*models.Product{
		{
			TenantID:    tenant.TenantID,
			ProductID:   "prod_demo_ros_display",
			Name:        "Run of Site Display",
			Description: "Standard display across all demo properties",
			FormatIDs: []adcp.FormatRef{
				{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"},
				{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_728x90"},
			},
			DeliveryType: adcp.DeliveryTypeNonGuaranteed,
			PricingOptions: []adcp.PricingOption{
				{PricingOptionID: "cpm_usd_auction", PricingModel: adcp.PricingModelCPM, Currency: "USD",
					PriceGuidance: &adcp.PriceGuidance{Floor: 1.5, P50: 4.0, P90: 8.0}},
			},
			InventoryProfileID: profile.ProfileID,
		},
		{
			TenantID:    tenant.TenantID,
			ProductID:   "prod_demo_homepage",
			Name:        "Homepage Takeover",
			Description: "Guaranteed homepage placement with fixed CPM",
			FormatIDs: []adcp.FormatRef{
				{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_728x90"},
			},
			DeliveryType: adcp.DeliveryTypeGuaranteed,
			PricingOptions: []adcp.PricingOption{
				{PricingOptionID: "cpm_usd_fixed", PricingModel: adcp.PricingModelCPM, Currency: "USD",
					Rate: 22.0, IsFixed: true, MinSpendPerPackage: 500},
			},
			MinExposures:       10000,
			InventoryProfileID: profile.ProfileID,
		},
		{
			TenantID:    tenant.TenantID,
			ProductID:   "prod_demo_video",
			Name:        "Pre-Roll Video",
			Description: "15 and 30 second pre-roll across demo video inventory",
			FormatIDs: []adcp.FormatRef{
				{AgentURL: adcp.DefaultFormatAgentURL, ID: "video_15s"},
				{AgentURL: adcp.DefaultFormatAgentURL, ID: "video_30s"},
			},
			DeliveryType: adcp.DeliveryTypeGuaranteed,
			PricingOptions: []adcp.PricingOption{
				{PricingOptionID: "cpm_usd_fixed", PricingModel: adcp.PricingModelCPM, Currency: "USD",
					Rate: 35.0, IsFixed: true},
				{PricingOptionID: "cpcv_usd_fixed", PricingModel: adcp.PricingModelCPCV, Currency: "USD",
					Rate: 0.08, IsFixed: true},
			},
			InventoryProfileID: profile.ProfileID,
		},
	}
	for _, p := range products {
		if err := pg.InsertProduct(ctx, p); err != nil {
			return fmt.Errorf("demo product %s: %w", p.ProductID, err)
		}
	}
	return nil
}

// random helpers

var nameAdjectives = []string{"Daily", "Morning", "Evening", "Metro", "Coastal", "Summit"}
var nameNouns = []string{"Examiner", "Tribune", "Courier", "Gazette", "Herald", "Chronicle"}

func fakeName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s", nameAdjectives[r.Intn(len(nameAdjectives))], nameNouns[r.Intn(len(nameNouns))])
}

func fakeSubdomain(r *rand.Rand) string {
	words := []string{"alpha", "beta", "gamma", "delta", "omega", "press", "wire"}
	return fmt.Sprintf("%s%d", words[r.Intn(len(words))], r.Intn(1000))
}

var buyerAdjectives = []string{"Acme", "Prime", "Dynamic", "Next", "Fast", "Bright"}
var buyerNouns = []string{"DSP", "Trading Desk", "Media Group", "Agency"}

func fakeBuyerName(r *rand.Rand) string {
	return fmt.Sprintf("%s %s", buyerAdjectives[r.Intn(len(buyerAdjectives))], buyerNouns[r.Intn(len(buyerNouns))])
}

func fakeProductName(r *rand.Rand) string {
	sections := []string{"Homepage", "Sports", "Business", "Lifestyle", "Video"}
	packages := []string{"Takeover", "Spotlight", "Billboard", "Run of Section"}
	return fmt.Sprintf("%s %s", sections[r.Intn(len(sections))], packages[r.Intn(len(packages))])
}

func randomTenant(r *rand.Rand) *models.Tenant {
	name := fakeName(r)
	sub := fakeSubdomain(r)
	return &models.Tenant{
		TenantID:         "tenant_" + uuid.NewString()[:8],
		Name:             name,
		Subdomain:        sub,
		AdServer:         models.AdServerMock,
		PublisherDomains: []string{sub + ".example.com"},
		PrimaryChannels:  []string{"display"},
		PrimaryCountries: []string{"US"},
		IsActive:         true,
	}
}

func randomPrincipal(r *rand.Rand, tenantID string) *models.Principal {
	mapping := fmt.Sprintf(`{"advertiser_id":"adv-%d"}`, r.Intn(10000))
	return &models.Principal{
		TenantID:    tenantID,
		PrincipalID: "prn_" + uuid.NewString()[:8],
		Name:        fakeBuyerName(r),
		AccessToken: uuid.NewString(),
		PlatformMappings: map[string]json.RawMessage{
			models.AdServerMock: json.RawMessage(mapping),
		},
	}
}

func randomProfile(r *rand.Rand, t *models.Tenant) *models.InventoryProfile {
	domain := t.PublisherDomains[0]
	return &models.InventoryProfile{
		TenantID:  t.TenantID,
		ProfileID: "prof_" + uuid.NewString()[:8],
		Name:      "Run of Site",
		AdUnits:   []string{fmt.Sprintf("/%s/ros", t.Subdomain)},
		Properties: []adcp.Property{
			{
				PropertyID:   "prop_" + uuid.NewString()[:8],
				PropertyType: "website",
				Name:         t.Name,
				Identifiers: []adcp.PropertyIdentifier{
					{Type: "domain", Value: domain},
				},
				PublisherDomain: domain,
			},
		},
	}
}

func randomProduct(r *rand.Rand, tenantID, profileID string) *models.Product {
	formats := [][]adcp.FormatRef{
		{{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"}},
		{{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_728x90"}},
		{{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_300x250"},
			{AgentURL: adcp.DefaultFormatAgentURL, ID: "display_320x50"}},
		{{AgentURL: adcp.DefaultFormatAgentURL, ID: "video_15s"}},
	}

	p := &models.Product{
		TenantID:           tenantID,
		ProductID:          "prod_" + uuid.NewString()[:8],
		Name:               fakeProductName(r),
		FormatIDs:          formats[r.Intn(len(formats))],
		DeliveryType:       adcp.DeliveryTypeNonGuaranteed,
		InventoryProfileID: profileID,
	}

	if r.Intn(3) == 0 {
		p.DeliveryType = adcp.DeliveryTypeGuaranteed
		p.MinExposures = int64(1000 * (1 + r.Intn(50)))
		p.PricingOptions = []adcp.PricingOption{
			{PricingOptionID: "cpm_usd_fixed", PricingModel: adcp.PricingModelCPM, Currency: "USD",
				Rate: 5 + float64(r.Intn(40)), IsFixed: true},
		}
		return p
	}

	floor := 0.5 + float64(r.Intn(4))
	p.PricingOptions = []adcp.PricingOption{
		{PricingOptionID: "cpm_usd_auction", PricingModel: adcp.PricingModelCPM, Currency: "USD",
			PriceGuidance: &adcp.PriceGuidance{Floor: floor, P50: floor * 3, P90: floor * 6}},
	}
	return p
}
