package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref references a user (creator, donor, voter, companion). Payloads carry
// either a bare identifier or a populated object.
type Ref struct {
	ID     ID     `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// UnmarshalJSON accepts a bare identifier or an object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		var id ID
		if err := id.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("decode ref: %w", err)
		}
		*r = Ref{ID: id}
		return nil
	}

	var aux struct {
		ID     ID     `json:"id"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode ref: %w", err)
	}
	if aux.ID.IsZero() {
		aux.ID = fallbackID(data)
	}
	*r = Ref{ID: aux.ID, Name: aux.Name, Avatar: aux.Avatar}
	return nil
}

// Is reports whether the reference points at id.
func (r Ref) Is(id ID) bool {
	return !id.IsZero() && SameID(r.ID, id)
}
