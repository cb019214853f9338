package adcp

import (
	"fmt"
	"time"
)

// Property types.
const (
	PropertyTypeWebsite   = "website"
	PropertyTypeMobileApp = "mobile_app"
	PropertyTypeCTVApp    = "ctv_app"
	PropertyTypeDOOH      = "dooh"
	PropertyTypePodcast   = "podcast"
	PropertyTypeRadio     = "radio"
)

// PropertyIdentifier names a property in some identifier space, for example
// {type: "domain", value: "news.example.com"}.
type PropertyIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Property is one sellable property in the publisher's portfolio.
type Property struct {
	PropertyID      string               `json:"property_id,omitempty"`
	PropertyType    string               `json:"property_type"`
	Name            string               `json:"name"`
	Identifiers     []PropertyIdentifier `json:"identifiers"`
	Tags            []string             `json:"tags,omitempty"`
	PublisherDomain string               `json:"publisher_domain,omitempty"`
}

// ListAuthorizedPropertiesRequest is empty in current protocol versions.
// The historical tags filter is accepted but ignored.
type ListAuthorizedPropertiesRequest struct {
	Tags StringOrList `json:"tags,omitempty"`
}

type ListAuthorizedPropertiesResponse struct {
	AdCPVersion          string     `json:"adcp_version"`
	Properties           []Property `json:"properties"`
	PublisherDomains     []string   `json:"publisher_domains,omitempty"`
	PrimaryChannels      []string   `json:"primary_channels,omitempty"`
	PrimaryCountries     []string   `json:"primary_countries,omitempty"`
	PortfolioDescription string     `json:"portfolio_description,omitempty"`
	AdvertisingPolicies  string     `json:"advertising_policies,omitempty"`
	LastUpdated          *time.Time `json:"last_updated,omitempty"`
	Errors               []Error    `json:"errors,omitempty"`
}

func (r *ListAuthorizedPropertiesResponse) Summary() string {
	return fmt.Sprintf("%d authorized properties", len(r.Properties))
}
