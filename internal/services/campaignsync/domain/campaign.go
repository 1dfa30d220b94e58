// Package domain defines the campaign, donation, update, and escrow entities
// a campaign view reconciles.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus is the lifecycle state reported by the campaign service.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Milestone is a funding percentage that unlocks an escrow release.
type Milestone struct {
	Percentage     float64 `json:"percentage"`
	CommitmentDays int     `json:"commitment_days,omitempty"`
}

// Campaign is the server's view of a fundraising campaign. Totals are never
// derived locally; they change only through snapshots and pushed totals.
type Campaign struct {
	ID              ID              `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	CurrentAmount   decimal.Decimal `json:"current_amount"`
	GoalAmount      decimal.Decimal `json:"goal_amount"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
	Status          CampaignStatus  `json:"status"`
	Creator         Ref             `json:"creator"`
	Milestones      []Milestone     `json:"milestones,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// UnmarshalJSON falls back to _id when id is absent.
func (c *Campaign) UnmarshalJSON(data []byte) error {
	type plain Campaign
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.ID.IsZero() {
		value.ID = fallbackID(data)
	}
	*c = Campaign(value)
	return nil
}
