// Package adcp defines the wire types and error taxonomy for the Ad Context
// Protocol media buy surface. Both transports decode into and encode from
// these structs; transport packages only shape the envelope around them.
package adcp

// Version is the protocol version stamped on every response payload.
const Version = "2.12.0"

// ExtensionURI identifies the AdCP capability extension advertised on the
// agent card.
const ExtensionURI = "https://adcontextprotocol.org/adcp"

// Skill names exposed by the agent. The same identifiers are used as MCP
// tool names and as A2A skill ids.
const (
	SkillGetProducts              = "get_products"
	SkillCreateMediaBuy           = "create_media_buy"
	SkillUpdateMediaBuy           = "update_media_buy"
	SkillGetMediaBuyDelivery      = "get_media_buy_delivery"
	SkillUpdatePerformanceIndex   = "update_performance_index"
	SkillSyncCreatives            = "sync_creatives"
	SkillListCreatives            = "list_creatives"
	SkillListCreativeFormats      = "list_creative_formats"
	SkillListAuthorizedProperties = "list_authorized_properties"
)

// SkillNames lists every skill in registration order.
func SkillNames() []string {
	return []string{
		SkillGetProducts,
		SkillCreateMediaBuy,
		SkillUpdateMediaBuy,
		SkillGetMediaBuyDelivery,
		SkillUpdatePerformanceIndex,
		SkillSyncCreatives,
		SkillListCreatives,
		SkillListCreativeFormats,
		SkillListAuthorizedProperties,
	}
}

// IsDiscoverySkill reports whether name may be invoked without a principal.
// The set is exactly the three discovery skills; every other skill requires
// authentication before any parameter is inspected.
func IsDiscoverySkill(name string) bool {
	switch name {
	case SkillGetProducts, SkillListCreativeFormats, SkillListAuthorizedProperties:
		return true
	}
	return false
}
