package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Normalization for JSONB columns that accumulated mixed representations:
// lists stored as JSON arrays, as JSON strings containing arrays, or as the
// literal string "null". Readers get one canonical Go form regardless of
// what an older writer put in the column.

// NormalizeStringList decodes a column that should hold a list of strings.
// Accepted forms: a JSON array, a JSON string wrapping an array, a single
// bare string, and null in any spelling. Nil means empty.
func NormalizeStringList(raw []byte) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if isNullish(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		trimmed := bytes.TrimSpace([]byte(inner))
		if isNullish(trimmed) {
			return nil, nil
		}
		if len(trimmed) > 0 && trimmed[0] == '[' {
			return NormalizeStringList(trimmed)
		}
		return []string{inner}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("expected string list: %w", err)
	}
	return list, nil
}

// NormalizeObject decodes a column that should hold a JSON object,
// tolerating the string-wrapped form. Nil means absent.
func NormalizeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if isNullish(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		return NormalizeObject([]byte(inner))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("expected JSON object: %w", err)
	}
	return m, nil
}

// NormalizeFormatRefs decodes a format list column. Entries may be bare id
// strings or {agent_url, id} objects; the result is always the normalized
// object form.
func NormalizeFormatRefs(raw []byte) ([]adcp.FormatRef, error) {
	raw = bytes.TrimSpace(raw)
	if isNullish(raw) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		trimmed := bytes.TrimSpace([]byte(inner))
		if isNullish(trimmed) {
			return nil, nil
		}
		if len(trimmed) > 0 && trimmed[0] == '[' {
			return NormalizeFormatRefs(trimmed)
		}
		return []adcp.FormatRef{{AgentURL: adcp.DefaultFormatAgentURL, ID: inner}}, nil
	}
	var refs []adcp.FormatRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("expected format list: %w", err)
	}
	return refs, nil
}

// ValidateComments enforces the typed comment shape on a raw column value.
func ValidateComments(raw json.RawMessage) error {
	if isNullish(bytes.TrimSpace(raw)) {
		return nil
	}
	var comments []Comment
	if err := json.Unmarshal(raw, &comments); err != nil {
		return fmt.Errorf("comments must be a list of {user, timestamp, text}: %w", err)
	}
	for i, c := range comments {
		if c.User == "" || c.Text == "" {
			return fmt.Errorf("comments[%d]: user and text are required", i)
		}
	}
	return nil
}

// ValidatePublisherProperties enforces the property shape used by inventory
// profiles and the authorized properties listing.
func ValidatePublisherProperties(raw json.RawMessage) error {
	if isNullish(bytes.TrimSpace(raw)) {
		return nil
	}
	var props []adcp.Property
	if err := json.Unmarshal(raw, &props); err != nil {
		return fmt.Errorf("publisher_properties must be a property list: %w", err)
	}
	for i, p := range props {
		if p.PropertyType == "" || p.Name == "" {
			return fmt.Errorf("publisher_properties[%d]: property_type and name are required", i)
		}
		if len(p.Identifiers) == 0 {
			return fmt.Errorf("publisher_properties[%d]: at least one identifier is required", i)
		}
	}
	return nil
}

func isNullish(raw []byte) bool {
	switch string(raw) {
	case "", "null", `"null"`:
		return true
	}
	return false
}
