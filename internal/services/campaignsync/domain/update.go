package domain

import (
	"encoding/json"
	"time"
)

// CampaignUpdate is a post by the campaign creator.
type CampaignUpdate struct {
	ID        ID        `json:"id"`
	Campaign  ID        `json:"campaign"`
	Content   string    `json:"content,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Creator   Ref       `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
}

// UpdateID extracts the identifier, for the generic merge helpers.
func UpdateID(u CampaignUpdate) ID { return u.ID }

// UnmarshalJSON falls back to _id when id is absent.
func (u *CampaignUpdate) UnmarshalJSON(data []byte) error {
	type plain CampaignUpdate
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.ID.IsZero() {
		value.ID = fallbackID(data)
	}
	*u = CampaignUpdate(value)
	return nil
}

// NewUpdate is the body of a create-update call. At least one of Content or
// ImageURL must be set.
type NewUpdate struct {
	Content  string `json:"content,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}
