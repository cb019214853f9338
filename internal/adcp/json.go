package adcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// StringOrList accepts either a single JSON string or an array of strings.
// Several AdCP fields allow both forms, status_filter among them.
type StringOrList []string

func (s *StringOrList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = StringOrList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*s = StringOrList(many)
	return nil
}

// Contains reports whether v is present in the list. An empty list matches
// nothing.
func (s StringOrList) Contains(v string) bool {
	for _, it := range s {
		if it == v {
			return true
		}
	}
	return false
}

// Date is the YYYY-MM-DD form used by reporting ranges.
const dateLayout = "2006-01-02"

// ParseDate parses a reporting date. The zero time and an empty error are
// returned for an empty input so optional range bounds stay optional.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
