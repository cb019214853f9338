package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Tool inputs mirror the AdCP request contracts. Nested objects stay loose
// (maps or any) so the inferred schema never rejects shapes the skill layer
// accepts, such as brand_manifest as either an object or a url string.

type getProductsInput struct {
	Brief            string         `json:"brief,omitempty" jsonschema:"natural language description of the campaign or audience"`
	PromotedOffering string         `json:"promoted_offering,omitempty" jsonschema:"name of the promoted brand or offering (legacy form of brand_manifest)"`
	BrandManifest    any            `json:"brand_manifest,omitempty" jsonschema:"brand manifest object or manifest url"`
	Filters          map[string]any `json:"filters,omitempty" jsonschema:"structured filters: delivery_type, format_types, format_ids, is_fixed_price, standard_formats_only"`
	MinExposures     int64          `json:"min_exposures,omitempty" jsonschema:"minimum impression volume the product must support"`
}

type listCreativeFormatsInput struct {
	Type         string `json:"type,omitempty" jsonschema:"filter by format type: audio, video, display"`
	StandardOnly *bool  `json:"standard_only,omitempty" jsonschema:"only return standard AdCP formats"`
	FormatIDs    any    `json:"format_ids,omitempty" jsonschema:"format id or list of format ids to look up"`
}

type listAuthorizedPropertiesInput struct {
	Tags any `json:"tags,omitempty" jsonschema:"tag or list of tags to filter properties"`
}

type createMediaBuyInput struct {
	BuyerRef         string           `json:"buyer_ref" jsonschema:"buyer's reference for this media buy"`
	Packages         []map[string]any `json:"packages" jsonschema:"packages to book: buyer_ref, product_id, pricing_option_id, budget or impressions, optional targeting_overlay and creative_ids"`
	PromotedOffering string           `json:"promoted_offering,omitempty" jsonschema:"name of the promoted offering (legacy form of brand_manifest)"`
	BrandManifest    any              `json:"brand_manifest,omitempty" jsonschema:"brand manifest object or manifest url"`
	PONumber         string           `json:"po_number,omitempty" jsonschema:"purchase order number for billing"`
	StartTime        any              `json:"start_time,omitempty" jsonschema:"RFC 3339 flight start, or the string asap"`
	EndTime          string           `json:"end_time,omitempty" jsonschema:"RFC 3339 flight end"`
	Budget           map[string]any   `json:"budget,omitempty" jsonschema:"overall budget: total, currency, optional pacing"`
	ReportingWebhook map[string]any   `json:"reporting_webhook,omitempty" jsonschema:"scheduled delivery report webhook: url, optional authentication, reporting_frequency"`
}

type updateMediaBuyInput struct {
	MediaBuyID string           `json:"media_buy_id,omitempty" jsonschema:"media buy to update (or reference it by buyer_ref)"`
	BuyerRef   string           `json:"buyer_ref,omitempty" jsonschema:"buyer's reference for the media buy"`
	Paused     *bool            `json:"paused,omitempty" jsonschema:"pause or resume the whole buy"`
	Active     *bool            `json:"active,omitempty" jsonschema:"legacy form of paused, inverted"`
	Budget     map[string]any   `json:"budget,omitempty" jsonschema:"new overall budget: total, currency"`
	StartTime  string           `json:"start_time,omitempty" jsonschema:"new RFC 3339 flight start"`
	EndTime    string           `json:"end_time,omitempty" jsonschema:"new RFC 3339 flight end"`
	Packages   []map[string]any `json:"packages,omitempty" jsonschema:"per-package updates: package_id or buyer_ref plus paused, budget, impressions or creative_ids"`
}

type getMediaBuyDeliveryInput struct {
	MediaBuyIDs  any    `json:"media_buy_ids,omitempty" jsonschema:"media buy id or list of ids"`
	BuyerRefs    any    `json:"buyer_refs,omitempty" jsonschema:"buyer ref or list of refs"`
	StatusFilter any    `json:"status_filter,omitempty" jsonschema:"status or list of statuses, or the string all"`
	StartDate    string `json:"start_date,omitempty" jsonschema:"reporting window start, YYYY-MM-DD"`
	EndDate      string `json:"end_date,omitempty" jsonschema:"reporting window end, YYYY-MM-DD"`
}

type performanceEntry struct {
	PackageID        string  `json:"package_id" jsonschema:"package the index applies to"`
	PerformanceIndex float64 `json:"performance_index" jsonschema:"relative performance, 1.0 is baseline"`
	MetricType       string  `json:"metric_type,omitempty" jsonschema:"metric behind the index, defaults to overall"`
}

type updatePerformanceIndexInput struct {
	MediaBuyID      string             `json:"media_buy_id,omitempty" jsonschema:"media buy the data belongs to (or reference it by buyer_ref)"`
	BuyerRef        string             `json:"buyer_ref,omitempty" jsonschema:"buyer's reference for the media buy"`
	PerformanceData []performanceEntry `json:"performance_data" jsonschema:"per-package performance indices"`
}

type syncCreativesInput struct {
	Creatives      []map[string]any    `json:"creatives,omitempty" jsonschema:"creatives to upsert: creative_id, name, format_id, url or snippet fields"`
	CreativeIDs    []string            `json:"creative_ids,omitempty" jsonschema:"restrict the sync to these creative ids"`
	Assignments    map[string][]string `json:"assignments,omitempty" jsonschema:"creative id to package ids assignment map"`
	DeleteMissing  bool                `json:"delete_missing,omitempty" jsonschema:"archive library creatives absent from this sync"`
	DryRun         bool                `json:"dry_run,omitempty" jsonschema:"validate without persisting"`
	ValidationMode string              `json:"validation_mode,omitempty" jsonschema:"strict fails the whole sync on any invalid creative, lenient skips them"`
}

type listCreativesInput struct {
	Filters    map[string]any `json:"filters,omitempty" jsonschema:"filters: status, format_id, tags, created_after, created_before, search"`
	Sort       map[string]any `json:"sort,omitempty" jsonschema:"sort spec: field and direction"`
	Pagination map[string]any `json:"pagination,omitempty" jsonschema:"page spec: limit and offset"`
}

func (b *binding) registerTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillGetProducts,
		Description: "Discover advertising products matching a brief or brand manifest",
	}, b.getProducts)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillListCreativeFormats,
		Description: "List the creative formats this sales agent accepts",
	}, b.listCreativeFormats)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillListAuthorizedProperties,
		Description: "List the properties this sales agent is authorized to sell",
	}, b.listAuthorizedProperties)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillCreateMediaBuy,
		Description: "Create a media buy from selected product packages",
	}, b.createMediaBuy)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillUpdateMediaBuy,
		Description: "Update budgets, flights, pauses or packages of an existing media buy",
	}, b.updateMediaBuy)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillGetMediaBuyDelivery,
		Description: "Retrieve delivery metrics for one or more media buys",
	}, b.getMediaBuyDelivery)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillUpdatePerformanceIndex,
		Description: "Report buyer-side performance indices per package",
	}, b.updatePerformanceIndex)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillSyncCreatives,
		Description: "Upload creatives and assign them to media buy packages",
	}, b.syncCreatives)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        adcp.SkillListCreatives,
		Description: "Browse the caller's creative library with filtering and paging",
	}, b.listCreatives)
}

func (b *binding) getProducts(ctx context.Context, _ *mcp.CallToolRequest, input getProductsInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillGetProducts, input)
}

func (b *binding) listCreativeFormats(ctx context.Context, _ *mcp.CallToolRequest, input listCreativeFormatsInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillListCreativeFormats, input)
}

func (b *binding) listAuthorizedProperties(ctx context.Context, _ *mcp.CallToolRequest, input listAuthorizedPropertiesInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillListAuthorizedProperties, input)
}

func (b *binding) createMediaBuy(ctx context.Context, _ *mcp.CallToolRequest, input createMediaBuyInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillCreateMediaBuy, input)
}

func (b *binding) updateMediaBuy(ctx context.Context, _ *mcp.CallToolRequest, input updateMediaBuyInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillUpdateMediaBuy, input)
}

func (b *binding) getMediaBuyDelivery(ctx context.Context, _ *mcp.CallToolRequest, input getMediaBuyDeliveryInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillGetMediaBuyDelivery, input)
}

func (b *binding) updatePerformanceIndex(ctx context.Context, _ *mcp.CallToolRequest, input updatePerformanceIndexInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillUpdatePerformanceIndex, input)
}

func (b *binding) syncCreatives(ctx context.Context, _ *mcp.CallToolRequest, input syncCreativesInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillSyncCreatives, input)
}

func (b *binding) listCreatives(ctx context.Context, _ *mcp.CallToolRequest, input listCreativesInput) (*mcp.CallToolResult, any, error) {
	return b.dispatch(ctx, adcp.SkillListCreatives, input)
}
