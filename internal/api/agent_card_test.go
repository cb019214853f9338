package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/toller892/adcp-salesagent/internal/a2a"
	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/auth"
)

func fetchCard(t *testing.T, f *apiFixture, path, host, incomingHost string) a2a.AgentCard {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	if incomingHost != "" {
		req.Header.Set(auth.HeaderIncomingHost, incomingHost)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, w.Code)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(w.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	return card
}

func TestAgentCardServedOnAllPaths(t *testing.T) {
	f := newAPIFixture(t)
	paths := []string{"/.well-known/agent-card.json", "/.well-known/agent.json", "/agent.json"}

	var first a2a.AgentCard
	for i, path := range paths {
		card := fetchCard(t, f, path, tenantHost, "")
		if i == 0 {
			first = card
			continue
		}
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(card)
		if string(a) != string(b) {
			t.Errorf("card at %s differs from %s", path, paths[0])
		}
	}
	if first.Name != "Examiner Sales Agent" || first.Version != "1.2.0" {
		t.Errorf("card identity = %s %s", first.Name, first.Version)
	}
	if first.ProtocolVersion == "" || first.PreferredTransport != "JSONRPC" {
		t.Errorf("card transport = %q %q", first.ProtocolVersion, first.PreferredTransport)
	}
}

func TestAgentCardURL(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		host         string
		incomingHost string
		want         string
	}{
		{"examiner.sales.test", "", "https://examiner.sales.test/a2a"},
		{"localhost:8080", "", "http://localhost:8080/a2a"},
		{"127.0.0.1:8080", "", "http://127.0.0.1:8080/a2a"},
		{"internal-svc:8080", "examiner.sales.test", "https://examiner.sales.test/a2a"},
	}
	for _, tc := range cases {
		card := fetchCard(t, f, "/.well-known/agent-card.json", tc.host, tc.incomingHost)
		if card.URL != tc.want {
			t.Errorf("host %q incoming %q: url = %q, want %q", tc.host, tc.incomingHost, card.URL, tc.want)
		}
		if strings.HasSuffix(card.URL, "/a2a/") || !strings.HasSuffix(card.URL, "/a2a") {
			t.Errorf("url %q must end in /a2a without a trailing slash", card.URL)
		}
	}
}

func TestAgentCardSkillsAndExtension(t *testing.T) {
	f := newAPIFixture(t)
	card := fetchCard(t, f, "/.well-known/agent-card.json", tenantHost, "")

	if len(card.Skills) != len(adcp.SkillNames()) {
		t.Fatalf("skills = %d, want %d", len(card.Skills), len(adcp.SkillNames()))
	}
	seen := make(map[string]bool)
	for _, sk := range card.Skills {
		seen[sk.ID] = true
		if sk.Description == "" {
			t.Errorf("skill %s has no description", sk.ID)
		}
	}
	for _, name := range adcp.SkillNames() {
		if !seen[name] {
			t.Errorf("skill %s missing from card", name)
		}
	}

	if !card.Capabilities.Streaming || !card.Capabilities.PushNotifications {
		t.Errorf("capabilities = %+v", card.Capabilities)
	}
	if len(card.Capabilities.Extensions) != 1 {
		t.Fatalf("extensions = %+v", card.Capabilities.Extensions)
	}
	ext := card.Capabilities.Extensions[0]
	if ext.URI != adcp.ExtensionURI {
		t.Errorf("extension uri = %q", ext.URI)
	}
	if v, _ := ext.Params["adcp_version"].(string); v != adcp.Version {
		t.Errorf("extension adcp_version = %v", ext.Params["adcp_version"])
	}
	if _, ok := card.SecuritySchemes["bearer"]; !ok {
		t.Errorf("bearer security scheme missing: %+v", card.SecuritySchemes)
	}
}
