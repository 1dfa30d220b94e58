package reconcile

import (
	"sort"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/event"
)

// State is the part of a campaign view that realtime events touch.
type State struct {
	CampaignID domain.ID
	Campaign   *domain.Campaign
	Donations  []domain.Donation
	Updates    []domain.CampaignUpdate
}

// Reasons reported with Ignored outcomes.
const (
	ReasonNilEvent           = "nil event"
	ReasonCampaignMismatch   = "campaign mismatch"
	ReasonUpdateNotPresent   = "update not present"
	ReasonUnsupportedEvent   = "unsupported event"
	ReasonDonationNotVisible = "donation not visible"
)

// Result reports the effect of applying one event.
type Result struct {
	Outcome Outcome
	// Totals is true when pushed campaign totals were written.
	Totals bool
	Reason string
}

// Foreign reports whether the event belonged to another campaign and so left
// state untouched.
func (r Result) Foreign() bool {
	return r.Outcome == Ignored && r.Reason == ReasonCampaignMismatch
}

// Changed reports whether the state differs after the event.
func (r Result) Changed() bool {
	return r.Outcome.Changed() || r.Totals
}

// Apply merges ev into state and returns the next state. The input state is
// not modified.
func Apply(state State, ev event.Event) (State, Result) {
	if ev == nil {
		return state, Result{Outcome: Ignored, Reason: ReasonNilEvent}
	}
	if !domain.SameID(ev.CampaignID(), state.CampaignID) {
		return state, Result{Outcome: Ignored, Reason: ReasonCampaignMismatch}
	}

	switch e := ev.(type) {
	case event.Donation:
		return applyDonation(state, e)
	case event.UpdateCreated:
		next := state
		var outcome Outcome
		next.Updates, outcome = Upsert(state.Updates, e.Update, domain.UpdateID)
		return next, Result{Outcome: outcome}
	case event.UpdateDeleted:
		next := state
		var outcome Outcome
		next.Updates, outcome = Remove(state.Updates, e.UpdateID, domain.UpdateID)
		result := Result{Outcome: outcome}
		if outcome == Ignored {
			result.Reason = ReasonUpdateNotPresent
		}
		return next, result
	default:
		return state, Result{Outcome: Ignored, Reason: ReasonUnsupportedEvent}
	}
}

func applyDonation(state State, e event.Donation) (State, Result) {
	next := state
	var result Result
	next.Donations, result.Outcome = MergeVisible(state.Donations, e.Donation, domain.DonationID, domain.Donation.Visible)
	if !e.Donation.Visible() && result.Outcome == Ignored {
		result.Reason = ReasonDonationNotVisible
	}

	if e.Totals != nil && state.Campaign != nil {
		campaign := ApplyTotals(*state.Campaign, *e.Totals)
		next.Campaign = &campaign
		result.Totals = true
	}
	return next, result
}

// ApplyTotals overwrites the campaign fields present in totals.
func ApplyTotals(campaign domain.Campaign, totals event.Totals) domain.Campaign {
	if totals.CurrentAmount != nil {
		campaign.CurrentAmount = *totals.CurrentAmount
	}
	if totals.GoalAmount != nil {
		campaign.GoalAmount = *totals.GoalAmount
	}
	if totals.AvailableAmount != nil {
		campaign.AvailableAmount = *totals.AvailableAmount
	}
	if totals.Status != nil {
		campaign.Status = *totals.Status
	}
	return campaign
}

// VisibleDonations filters a donation snapshot to visible entries ordered
// newest first. Entries with equal timestamps keep their relative order.
func VisibleDonations(donations []domain.Donation) []domain.Donation {
	visible := make([]domain.Donation, 0, len(donations))
	for _, donation := range donations {
		if donation.Visible() {
			visible = append(visible, donation)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})
	return visible
}

// SortUpdates returns updates ordered newest first.
func SortUpdates(updates []domain.CampaignUpdate) []domain.CampaignUpdate {
	sorted := make([]domain.CampaignUpdate, len(updates))
	copy(sorted, updates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}
