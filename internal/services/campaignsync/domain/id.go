package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is an entity identifier normalized to its string form.
//
// Upstream services serialize the same identifier as a plain string, a
// number, or an object carrying id, _id, or $oid. Every form decodes to the
// same ID so identifiers from REST snapshots and realtime payloads compare
// equal.
type ID string

// String returns the trimmed identifier.
func (id ID) String() string {
	return strings.TrimSpace(string(id))
}

// IsZero reports whether the identifier is blank.
func (id ID) IsZero() bool {
	return id.String() == ""
}

// SameID compares identifiers by their normalized string form.
func SameID(a, b ID) bool {
	return a.String() == b.String()
}

// UnmarshalJSON accepts string, number, object, and null forms.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	switch data[0] {
	case '"':
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("decode id string: %w", err)
		}
		*id = ID(strings.TrimSpace(value))
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("decode id object: %w", err)
		}
		for _, key := range []string{"_id", "id", "$oid"} {
			raw, ok := fields[key]
			if !ok {
				continue
			}
			var nested ID
			if err := nested.UnmarshalJSON(raw); err != nil {
				return err
			}
			if !nested.IsZero() {
				*id = nested
				return nil
			}
		}
		*id = ""
		return nil
	default:
		var number json.Number
		if err := json.Unmarshal(data, &number); err != nil {
			return fmt.Errorf("decode id %s: %w", string(data), err)
		}
		*id = ID(number.String())
		return nil
	}
}

// MarshalJSON always writes the plain string form.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// fallbackID reads the _id key of an entity object whose id key was absent.
func fallbackID(data []byte) ID {
	var aux struct {
		MongoID ID `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return ""
	}
	return aux.MongoID
}
