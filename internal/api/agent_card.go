package api

import (
	"net"
	"net/http"

	"github.com/toller892/adcp-salesagent/internal/a2a"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/auth"
)

// a2aProtocolVersion is the A2A revision the card declares.
const a2aProtocolVersion = "0.2.9"

// skillCardCopy is the per-skill description shown on the agent card.
var skillCardCopy = map[string]string{
	adcp.SkillGetProducts:              "Discover advertising products matching a brief or brand manifest",
	adcp.SkillCreateMediaBuy:           "Create a media buy from selected packages",
	adcp.SkillUpdateMediaBuy:           "Update budgets, pauses and packages of an existing media buy",
	adcp.SkillGetMediaBuyDelivery:      "Retrieve delivery metrics for one or more media buys",
	adcp.SkillUpdatePerformanceIndex:   "Report buyer-side performance indices per package",
	adcp.SkillSyncCreatives:            "Upload and assign creatives to media buy packages",
	adcp.SkillListCreatives:            "Browse the principal's creative library",
	adcp.SkillListCreativeFormats:      "List the creative formats this agent accepts",
	adcp.SkillListAuthorizedProperties: "List the properties this agent is authorized to sell",
}

// AgentCardHandler serves the self-describing card. All three well-known
// paths route here and return the identical document.
func (s *Server) AgentCardHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.agentCard(r))
}

// agentURL builds the A2A endpoint URL: no trailing slash, always ending in
// /a2a. Plain http is reserved for local development hosts.
func agentURL(authority string) string {
	host := authority
	if h, _, err := net.SplitHostPort(authority); err == nil {
		host = h
	}
	scheme := "https"
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		scheme = "http"
	}
	return scheme + "://" + authority + "/a2a"
}

func (s *Server) agentCard(r *http.Request) a2a.AgentCard {
	// Behind the routing proxy the original authority arrives in
	// Apx-Incoming-Host; Host then names the internal service.
	authority := r.Header.Get(auth.HeaderIncomingHost)
	if authority == "" {
		authority = r.Host
	}

	agentSkills := make([]a2a.AgentSkill, 0, len(s.Skills.Names()))
	for _, name := range s.Skills.Names() {
		agentSkills = append(agentSkills, a2a.AgentSkill{
			ID:          name,
			Name:        name,
			Description: skillCardCopy[name],
			Tags:        []string{"adcp", "media-buy"},
			InputModes:  []string{"application/json"},
			OutputModes: []string{"application/json"},
		})
	}

	return a2a.AgentCard{
		ProtocolVersion:    a2aProtocolVersion,
		Name:               s.Config.AgentName,
		Description:        "AdCP sales agent for programmatic media buying",
		URL:                agentURL(authority),
		PreferredTransport: "JSONRPC",
		Provider: &a2a.AgentProvider{
			Organization: s.Config.AgentName,
		},
		Version: s.Config.AgentVersion,
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
			Extensions: []a2a.AgentExtension{{
				URI:         adcp.ExtensionURI,
				Description: "Ad Context Protocol media buy extension",
				Params: map[string]any{
					"adcp_version": adcp.Version,
					"protocols":    []string{"a2a", "mcp"},
				},
			}},
		},
		SecuritySchemes: map[string]a2a.SecurityScheme{
			"bearer": {
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "opaque",
				Description:  "Principal access token issued by the publisher",
			},
		},
		Security:           []map[string][]string{{"bearer": {}}},
		DefaultInputModes:  []string{"application/json", "text/plain"},
		DefaultOutputModes: []string{"application/json"},
		Skills:             agentSkills,
	}
}
