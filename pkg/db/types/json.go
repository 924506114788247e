package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a raw JSON document persisted in a jsonb column. It is sent as
// text so the simple protocol does not encode it as bytea.
type JSON []byte

// MustJSON encodes v and panics on failure. For literals in tests and
// fixtures.
func MustJSON(v any) JSON {
	j, err := NewJSON(v)
	if err != nil {
		panic(err)
	}
	return j
}

// NewJSON encodes v.
func NewJSON(v any) (JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(raw), nil
}

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSON: invalid document")
	}
	return string(j), nil
}

func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case string:
		*j = JSON(v)
	case []byte:
		*j = JSON(bytes.Clone(v))
	default:
		return fmt.Errorf("JSON: unsupported Scan type %T", src)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(bytes.Clone(data))
	return nil
}

// Decode unmarshals the document into v.
func (j JSON) Decode(v any) error {
	if len(j) == 0 {
		return fmt.Errorf("JSON: empty document")
	}
	return json.Unmarshal(j, v)
}
