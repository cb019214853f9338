package db

import (
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/toller892/adcp-salesagent/internal/models"
)

var _ models.Store = (*Postgres)(nil)

// rowScanner is satisfied by both *sql.Row and *sql.Rows so scan helpers
// serve single-row and list queries alike.
type rowScanner interface {
	Scan(dest ...any) error
}

// jsonbList marshals a slice for a NOT NULL JSONB column, mapping nil to
// an empty array rather than SQL NULL.
func jsonbList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

// jsonbObject marshals a map for a NOT NULL JSONB column, mapping nil to
// an empty object.
func jsonbObject(v map[string]any) ([]byte, error) {
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

// jsonbOrNull marshals a value for a nullable JSONB column. Nil pointers
// and empty raw messages become SQL NULL.
func jsonbOrNull(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// unmarshalJSONB decodes a JSONB column value, treating NULL as absent.
func unmarshalJSONB(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// isUniqueViolation reports whether an error is a Postgres unique
// constraint violation, which the store surfaces as models.ErrDuplicate.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// mapInsertErr converts constraint violations to the store's sentinel.
func mapInsertErr(err error) error {
	if isUniqueViolation(err) {
		return models.ErrDuplicate
	}
	return err
}
