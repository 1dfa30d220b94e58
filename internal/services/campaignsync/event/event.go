// Package event decodes realtime payloads into tagged variants.
//
// Decoding happens once at the transport boundary. Payloads that lack a
// required field are rejected with a MALFORMED_PAYLOAD error and never reach
// the merge rules.
package event

import (
	"encoding/json"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/shopspring/decimal"
)

// Name is a realtime event name.
type Name string

const (
	DonationCreated       Name = "donation:created"
	DonationStatusChanged Name = "donation:status_changed"
	DonationUpdated       Name = "donation:updated"
	UpdateCreatedName     Name = "campaign:update:created"
	UpdateDeletedName     Name = "campaign:update:deleted"
)

// Names lists every event a campaign view subscribes to.
func Names() []Name {
	return []Name{
		DonationCreated,
		DonationStatusChanged,
		DonationUpdated,
		UpdateCreatedName,
		UpdateDeletedName,
	}
}

// Event is a decoded realtime event scoped to one campaign.
type Event interface {
	EventName() Name
	CampaignID() domain.ID
}

// Totals carries campaign monetary fields pushed alongside a donation. Nil
// fields were absent from the payload.
type Totals struct {
	CurrentAmount   *decimal.Decimal       `json:"current_amount,omitempty"`
	GoalAmount      *decimal.Decimal       `json:"goal_amount,omitempty"`
	AvailableAmount *decimal.Decimal       `json:"available_amount,omitempty"`
	Status          *domain.CampaignStatus `json:"status,omitempty"`
}

// Empty reports whether no total was pushed.
func (t Totals) Empty() bool {
	return t.CurrentAmount == nil && t.GoalAmount == nil && t.AvailableAmount == nil && t.Status == nil
}

// Donation is any of the three donation events.
type Donation struct {
	Name     Name
	Campaign domain.ID
	Donation domain.Donation
	Totals   *Totals
}

func (e Donation) EventName() Name { return e.Name }
func (e Donation) CampaignID() domain.ID { return e.Campaign }

// UpdateCreated announces a new campaign update.
type UpdateCreated struct {
	Campaign domain.ID
	Update   domain.CampaignUpdate
}

func (e UpdateCreated) EventName() Name { return UpdateCreatedName }
func (e UpdateCreated) CampaignID() domain.ID { return e.Campaign }

// UpdateDeleted announces a removed campaign update.
type UpdateDeleted struct {
	Campaign domain.ID
	UpdateID domain.ID
}

func (e UpdateDeleted) EventName() Name { return UpdateDeletedName }
func (e UpdateDeleted) CampaignID() domain.ID { return e.Campaign }

type donationPayload struct {
	CampaignID domain.ID        `json:"campaignId"`
	Donation   *domain.Donation `json:"donation"`
	Campaign   *Totals          `json:"campaign"`
}

type updateCreatedPayload struct {
	CampaignID domain.ID              `json:"campaignId"`
	Update     *domain.CampaignUpdate `json:"update"`
}

type updateDeletedPayload struct {
	CampaignID domain.ID `json:"campaignId"`
	UpdateID   domain.ID `json:"updateId"`
}

// Decode parses raw as the payload of the named event.
func Decode(name Name, raw json.RawMessage) (Event, error) {
	switch name {
	case DonationCreated, DonationStatusChanged, DonationUpdated:
		var payload donationPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, malformed(name, "decode donation payload", err)
		}
		if payload.CampaignID.IsZero() {
			return nil, missing(name, "campaignId")
		}
		if payload.Donation == nil || payload.Donation.ID.IsZero() {
			return nil, missing(name, "donation.id")
		}
		donation := *payload.Donation
		if donation.Campaign.IsZero() {
			donation.Campaign = payload.CampaignID
		}
		ev := Donation{Name: name, Campaign: payload.CampaignID, Donation: donation}
		if payload.Campaign != nil && !payload.Campaign.Empty() {
			ev.Totals = payload.Campaign
		}
		return ev, nil
	case UpdateCreatedName:
		var payload updateCreatedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, malformed(name, "decode update payload", err)
		}
		if payload.CampaignID.IsZero() {
			return nil, missing(name, "campaignId")
		}
		if payload.Update == nil || payload.Update.ID.IsZero() {
			return nil, missing(name, "update.id")
		}
		update := *payload.Update
		if update.Campaign.IsZero() {
			update.Campaign = payload.CampaignID
		}
		return UpdateCreated{Campaign: payload.CampaignID, Update: update}, nil
	case UpdateDeletedName:
		var payload updateDeletedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, malformed(name, "decode update deletion payload", err)
		}
		if payload.CampaignID.IsZero() {
			return nil, missing(name, "campaignId")
		}
		if payload.UpdateID.IsZero() {
			return nil, missing(name, "updateId")
		}
		return UpdateDeleted{Campaign: payload.CampaignID, UpdateID: payload.UpdateID}, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "unknown event", map[string]string{"event": string(name)})
	}
}

func malformed(name Name, message string, err error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeMalformedPayload, message, map[string]string{"event": string(name)}, err)
}

func missing(name Name, field string) error {
	return apperrors.WithMetadata(apperrors.CodeMalformedPayload, "missing "+field, map[string]string{
		"event": string(name),
		"field": field,
	})
}
