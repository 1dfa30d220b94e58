package domain

import (
	"encoding/json"
	"time"
)

// Companion is a user promoting a campaign on the creator's behalf, holding
// a referral code that attributes proxy donations.
type Companion struct {
	ID           ID        `json:"id"`
	Campaign     ID        `json:"campaign"`
	User         Ref       `json:"user"`
	ReferralCode string    `json:"referral_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CompanionID extracts the identifier, for the generic merge helpers.
func CompanionID(c Companion) ID { return c.ID }

// UnmarshalJSON falls back to _id when id is absent.
func (c *Companion) UnmarshalJSON(data []byte) error {
	type plain Companion
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.ID.IsZero() {
		value.ID = fallbackID(data)
	}
	*c = Companion(value)
	return nil
}
