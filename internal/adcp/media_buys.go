package adcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Media buy statuses exposed to buyers.
const (
	StatusPendingActivation = "pending_activation"
	StatusScheduled         = "scheduled"
	StatusActive            = "active"
	StatusPaused            = "paused"
	StatusCompleted         = "completed"
	StatusSubmitted         = "submitted"
	StatusRejected          = "rejected"
	StatusCanceled          = "canceled"
)

// Budget carries a monetary amount with its currency. Pacing is advisory.
// Older buyers send a bare number; it decodes as the total with the currency
// left to the pricing option's default.
type Budget struct {
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	Pacing   string  `json:"pacing,omitempty"`
}

func (b *Budget) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] != '{' {
		var total float64
		if err := json.Unmarshal(raw, &total); err != nil {
			return fmt.Errorf("budget must be a number or {total, currency}: %w", err)
		}
		*b = Budget{Total: total}
		return nil
	}
	type alias Budget
	var a alias
	if err := json.Unmarshal(raw, &a); err != nil {
		return err
	}
	*b = Budget(a)
	return nil
}

// StartSpec is the start_time field of create_media_buy: an RFC 3339
// timestamp or the literal "asap", which resolves to the moment the buy is
// provisioned.
type StartSpec struct {
	Time time.Time
	ASAP bool
}

func (s *StartSpec) UnmarshalJSON(raw []byte) error {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return fmt.Errorf("start_time must be an RFC 3339 timestamp or \"asap\"")
	}
	if str == "asap" {
		*s = StartSpec{ASAP: true}
		return nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return fmt.Errorf("start_time must be an RFC 3339 timestamp or \"asap\": %w", err)
	}
	*s = StartSpec{Time: t}
	return nil
}

func (s StartSpec) MarshalJSON() ([]byte, error) {
	if s.ASAP {
		return json.Marshal("asap")
	}
	return json.Marshal(s.Time.Format(time.RFC3339))
}

// Resolve returns the effective start time, substituting now for "asap".
func (s *StartSpec) Resolve(now time.Time) time.Time {
	if s == nil || s.ASAP || s.Time.IsZero() {
		return now
	}
	return s.Time
}

// PackageRequest is one line of a create_media_buy order. A package buys a
// single product under one of its pricing options. product_id and the
// legacy products array are both accepted; ResolveProductID applies the
// precedence.
type PackageRequest struct {
	BuyerRef         string          `json:"buyer_ref"`
	ProductID        string          `json:"product_id,omitempty"`
	Products         []string        `json:"products,omitempty"`
	PricingOptionID  string          `json:"pricing_option_id"`
	Budget           *Budget         `json:"budget,omitempty"`
	Impressions      int64           `json:"impressions,omitempty"`
	TargetingOverlay json.RawMessage `json:"targeting_overlay,omitempty"`
	CreativeIDs      []string        `json:"creative_ids,omitempty"`
}

// ResolveProductID returns the product the package buys, preferring the
// singular field over the legacy array form.
func (p *PackageRequest) ResolveProductID() string {
	if p.ProductID != "" {
		return p.ProductID
	}
	if len(p.Products) > 0 {
		return p.Products[0]
	}
	return ""
}

// ReportingWebhook subscribes the buyer to scheduled delivery reports for
// the media buy being created.
type ReportingWebhook struct {
	URL                string       `json:"url"`
	ReportingFrequency string       `json:"reporting_frequency"`
	Authentication     *WebhookAuth `json:"authentication,omitempty"`
}

// WebhookAuth mirrors the push notification authentication shape: the first
// scheme is applied with the stored credentials.
type WebhookAuth struct {
	Schemes     []string `json:"schemes,omitempty"`
	Credentials string   `json:"credentials,omitempty"`
}

// Reporting frequencies accepted on reporting_webhook.
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyMonthly = "monthly"
)

// ReportInterval returns the gap between scheduled delivery reports for a
// reporting frequency.
func ReportInterval(freq string) (time.Duration, error) {
	switch freq {
	case FrequencyHourly:
		return time.Hour, nil
	case FrequencyDaily:
		return 24 * time.Hour, nil
	case FrequencyMonthly:
		return 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown reporting_frequency %q", freq)
}

type CreateMediaBuyRequest struct {
	BuyerRef         string            `json:"buyer_ref"`
	Packages         []PackageRequest  `json:"packages"`
	PromotedOffering string            `json:"promoted_offering,omitempty"`
	BrandManifest    json.RawMessage   `json:"brand_manifest,omitempty"`
	PONumber         string            `json:"po_number,omitempty"`
	StartTime        *StartSpec        `json:"start_time,omitempty"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	Budget           *Budget           `json:"budget,omitempty"`
	ReportingWebhook *ReportingWebhook `json:"reporting_webhook,omitempty"`
}

// PackageResult echoes the server-assigned id for a created package.
type PackageResult struct {
	PackageID string `json:"package_id"`
	BuyerRef  string `json:"buyer_ref"`
	ProductID string `json:"product_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

type CreateMediaBuyResponse struct {
	AdCPVersion      string          `json:"adcp_version"`
	MediaBuyID       string          `json:"media_buy_id,omitempty"`
	BuyerRef         string          `json:"buyer_ref"`
	Status           string          `json:"status"`
	Packages         []PackageResult `json:"packages,omitempty"`
	CreativeDeadline *time.Time      `json:"creative_deadline,omitempty"`
	Errors           []Error         `json:"errors,omitempty"`
}

func (r *CreateMediaBuyResponse) Summary() string {
	switch r.Status {
	case StatusSubmitted:
		return fmt.Sprintf("Media buy %s submitted for review", r.BuyerRef)
	case "":
		return "Media buy request failed"
	default:
		return fmt.Sprintf("Created media buy %s with %d packages", r.MediaBuyID, len(r.Packages))
	}
}

// Submitted reports whether the buy awaits human approval.
func (r *CreateMediaBuyResponse) Submitted() bool {
	return r.Status == StatusSubmitted
}

// PackageUpdate adjusts one package of an existing buy. Packages are
// addressed by package_id or buyer_ref.
type PackageUpdate struct {
	PackageID   string   `json:"package_id,omitempty"`
	BuyerRef    string   `json:"buyer_ref,omitempty"`
	Paused      *bool    `json:"paused,omitempty"`
	Budget      *Budget  `json:"budget,omitempty"`
	Impressions int64    `json:"impressions,omitempty"`
	CreativeIDs []string `json:"creative_ids,omitempty"`
}

// UpdateMediaBuyRequest mutates an existing buy. Exactly one of media_buy_id
// or buyer_ref must identify it. paused is the canonical pause control; the
// legacy active field is still accepted and inverted.
type UpdateMediaBuyRequest struct {
	MediaBuyID string          `json:"media_buy_id,omitempty"`
	BuyerRef   string          `json:"buyer_ref,omitempty"`
	Paused     *bool           `json:"paused,omitempty"`
	Active     *bool           `json:"active,omitempty"`
	Budget     *Budget         `json:"budget,omitempty"`
	StartTime  *time.Time      `json:"start_time,omitempty"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	Packages   []PackageUpdate `json:"packages,omitempty"`
}

type UpdateMediaBuyResponse struct {
	AdCPVersion        string     `json:"adcp_version"`
	MediaBuyID         string     `json:"media_buy_id"`
	BuyerRef           string     `json:"buyer_ref,omitempty"`
	Status             string     `json:"status"`
	ImplementationDate *time.Time `json:"implementation_date,omitempty"`
	AffectedPackages   []string   `json:"affected_packages,omitempty"`
	Errors             []Error    `json:"errors,omitempty"`
}

func (r *UpdateMediaBuyResponse) Summary() string {
	return fmt.Sprintf("Updated media buy %s, status %s", r.MediaBuyID, r.Status)
}

// GetMediaBuyDeliveryRequest selects buys to report on. With no ids or refs
// every buy owned by the caller is included, optionally narrowed by status.
type GetMediaBuyDeliveryRequest struct {
	MediaBuyIDs  StringOrList `json:"media_buy_ids,omitempty"`
	BuyerRefs    StringOrList `json:"buyer_refs,omitempty"`
	StatusFilter StringOrList `json:"status_filter,omitempty"`
	StartDate    string       `json:"start_date,omitempty"`
	EndDate      string       `json:"end_date,omitempty"`
}

// DeliveryTotals aggregates delivered volume.
type DeliveryTotals struct {
	Impressions int64   `json:"impressions"`
	Spend       float64 `json:"spend"`
	Clicks      int64   `json:"clicks,omitempty"`
	Completions int64   `json:"video_completions,omitempty"`
}

// PackageDelivery reports one package inside a buy.
type PackageDelivery struct {
	PackageID        string         `json:"package_id"`
	BuyerRef         string         `json:"buyer_ref,omitempty"`
	Totals           DeliveryTotals `json:"totals"`
	PerformanceIndex float64        `json:"performance_index,omitempty"`
}

// MediaBuyDelivery is the per-buy slice of a delivery report.
type MediaBuyDelivery struct {
	MediaBuyID string            `json:"media_buy_id"`
	BuyerRef   string            `json:"buyer_ref,omitempty"`
	Status     string            `json:"status"`
	Totals     DeliveryTotals    `json:"totals"`
	ByPackage  []PackageDelivery `json:"by_package,omitempty"`
}

// ReportingPeriod bounds a delivery report.
type ReportingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GetMediaBuyDeliveryResponse doubles as the poll response and the scheduled
// webhook payload. notification_type and next_expected_at are only set on
// pushed reports.
type GetMediaBuyDeliveryResponse struct {
	AdCPVersion        string             `json:"adcp_version"`
	ReportingPeriod    *ReportingPeriod   `json:"reporting_period,omitempty"`
	Currency           string             `json:"currency,omitempty"`
	AggregatedTotals   DeliveryTotals     `json:"aggregated_totals"`
	MediaBuyDeliveries []MediaBuyDelivery `json:"media_buy_deliveries"`
	NotificationType   string             `json:"notification_type,omitempty"`
	NextExpectedAt     *time.Time         `json:"next_expected_at,omitempty"`
	Errors             []Error            `json:"errors,omitempty"`
}

func (r *GetMediaBuyDeliveryResponse) Summary() string {
	return fmt.Sprintf("Delivery for %d media buys: %d impressions, %.2f spend",
		len(r.MediaBuyDeliveries), r.AggregatedTotals.Impressions, r.AggregatedTotals.Spend)
}

// PackagePerformance carries a buyer-computed index for one package. 1.0 is
// baseline performance.
type PackagePerformance struct {
	PackageID        string  `json:"package_id"`
	PerformanceIndex float64 `json:"performance_index"`
	MetricType       string  `json:"metric_type,omitempty"`
}

type UpdatePerformanceIndexRequest struct {
	MediaBuyID      string               `json:"media_buy_id,omitempty"`
	BuyerRef        string               `json:"buyer_ref,omitempty"`
	PerformanceData []PackagePerformance `json:"performance_data"`
}

type UpdatePerformanceIndexResponse struct {
	AdCPVersion string  `json:"adcp_version"`
	MediaBuyID  string  `json:"media_buy_id"`
	Status      string  `json:"status"`
	Errors      []Error `json:"errors,omitempty"`
}

func (r *UpdatePerformanceIndexResponse) Summary() string {
	return fmt.Sprintf("Performance index for %s %s", r.MediaBuyID, r.Status)
}
