package skills

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

// Normalize rewrites the accepted legacy parameter shapes into the canonical
// form before a skill decodes them:
//
//   - an input or parameters wrapper is unwrapped (A2A explicit-skill calls)
//   - adcp_version is stripped, it is metadata and must never reach a skill
//   - get_media_buy_delivery lifts a singular media_buy_id into the plural
//   - update_media_buy flattens the legacy updates wrapper
//
// The result is always a JSON object.
func Normalize(skill string, raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}

	if inner, ok := objectField(m, "input"); ok {
		m = inner
	} else if inner, ok := objectField(m, "parameters"); ok {
		m = inner
	}

	delete(m, "adcp_version")

	switch skill {
	case adcp.SkillGetMediaBuyDelivery:
		if one, ok := m["media_buy_id"]; ok {
			if _, has := m["media_buy_ids"]; !has {
				m["media_buy_ids"] = one
			}
			delete(m, "media_buy_id")
		}
	case adcp.SkillUpdateMediaBuy:
		if updates, ok := objectField(m, "updates"); ok {
			for k, v := range updates {
				if _, has := m[k]; !has {
					m[k] = v
				}
			}
			delete(m, "updates")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-encode parameters: %w", err)
	}
	return out, nil
}

// objectField returns m[key] decoded as an object when it is one.
func objectField(m map[string]json.RawMessage, key string) (map[string]json.RawMessage, bool) {
	raw, ok := m[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, false
	}
	return inner, true
}
