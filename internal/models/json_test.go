package models

import (
	"reflect"
	"testing"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

func TestNormalizeStringList(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{name: "plain array", raw: `["a","b"]`, want: []string{"a", "b"}},
		{name: "string wrapped array", raw: `"[\"a\",\"b\"]"`, want: []string{"a", "b"}},
		{name: "single bare string", raw: `"video"`, want: []string{"video"}},
		{name: "null literal", raw: `null`, want: nil},
		{name: "string null", raw: `"null"`, want: nil},
		{name: "empty", raw: ``, want: nil},
		{name: "object is rejected", raw: `{"a":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeStringList([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeFormatRefs(t *testing.T) {
	got, err := NormalizeFormatRefs([]byte(`["banner_300x250", {"agent_url": "https://formats.example.com", "id": "custom_wide"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []adcp.FormatRef{
		{AgentURL: adcp.DefaultFormatAgentURL, ID: "banner_300x250"},
		{AgentURL: "https://formats.example.com", ID: "custom_wide"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	got, err = NormalizeFormatRefs([]byte(`"null"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for string null, got %+v", got)
	}

	got, err = NormalizeFormatRefs([]byte(`"banner_728x90"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "banner_728x90" {
		t.Errorf("bare string should become a single ref, got %+v", got)
	}
}

func TestValidateComments(t *testing.T) {
	if err := ValidateComments([]byte(`[{"user":"ops","timestamp":"2025-06-01T10:00:00Z","text":"approved"}]`)); err != nil {
		t.Errorf("valid comments rejected: %v", err)
	}
	if err := ValidateComments([]byte(`["free form string"]`)); err == nil {
		t.Error("free-form string comment should be rejected")
	}
	if err := ValidateComments([]byte(`[{"user":"","timestamp":"2025-06-01T10:00:00Z","text":"x"}]`)); err == nil {
		t.Error("comment without user should be rejected")
	}
	if err := ValidateComments([]byte(`null`)); err != nil {
		t.Errorf("null comments should pass: %v", err)
	}
}

func TestValidatePlatformMappings(t *testing.T) {
	if err := ValidatePlatformMappings([]byte(`{"mock":{"advertiser_id":"adv-1"}}`)); err != nil {
		t.Errorf("valid mappings rejected: %v", err)
	}
	if err := ValidatePlatformMappings([]byte(`{}`)); err != nil {
		t.Errorf("empty object rejected: %v", err)
	}
	if err := ValidatePlatformMappings(nil); err == nil {
		t.Error("absent mappings should be rejected")
	}
	if err := ValidatePlatformMappings([]byte(`null`)); err == nil {
		t.Error("null mappings should be rejected")
	}
	if err := ValidatePlatformMappings([]byte(`["mock"]`)); err == nil {
		t.Error("array mappings should be rejected")
	}
}

func TestValidatePublisherProperties(t *testing.T) {
	valid := `[{"property_type":"website","name":"Example News","identifiers":[{"type":"domain","value":"news.example.com"}]}]`
	if err := ValidatePublisherProperties([]byte(valid)); err != nil {
		t.Errorf("valid properties rejected: %v", err)
	}
	if err := ValidatePublisherProperties([]byte(`[{"property_type":"website","name":"No IDs","identifiers":[]}]`)); err == nil {
		t.Error("property without identifiers should be rejected")
	}
}
