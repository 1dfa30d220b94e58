// Package withdrawal derives escrow voting facts from fetched collections.
//
// Every function is pure and recomputed from the current collections; the
// escrow service remains authoritative for eligibility and tallies.
package withdrawal

import (
	"sort"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/shopspring/decimal"
)

// InProgress returns every request currently open for voting.
func InProgress(requests []domain.WithdrawalRequest) []domain.WithdrawalRequest {
	var open []domain.WithdrawalRequest
	for _, request := range requests {
		if request.Status == domain.RequestVotingInProgress {
			open = append(open, request)
		}
	}
	return open
}

// ActiveRequest returns the single request open for voting. Zero or several
// open requests yield none.
func ActiveRequest(requests []domain.WithdrawalRequest) (domain.WithdrawalRequest, bool) {
	open := InProgress(requests)
	if len(open) != 1 {
		return domain.WithdrawalRequest{}, false
	}
	return open[0], true
}

// CanVote reports whether viewer has a completed, non-anonymous donation in
// donations.
func CanVote(viewer domain.ID, donations []domain.Donation) bool {
	if viewer.IsZero() {
		return false
	}
	for _, donation := range donations {
		if donation.Visible() && donation.Donor.Is(viewer) {
			return true
		}
	}
	return false
}

// ViewerVote returns the viewer's vote on escrowID, if any.
func ViewerVote(votes []domain.Vote, escrowID, viewer domain.ID) (domain.Vote, bool) {
	if viewer.IsZero() {
		return domain.Vote{}, false
	}
	for _, vote := range votes {
		if domain.SameID(vote.Escrow, escrowID) && vote.Donor.Is(viewer) {
			return vote, true
		}
	}
	return domain.Vote{}, false
}

// Tally counts votes on one request.
type Tally struct {
	Approve int
	Reject  int
}

// Total returns the number of counted votes.
func (t Tally) Total() int {
	return t.Approve + t.Reject
}

// TallyVotes counts the locally known votes on escrowID.
func TallyVotes(votes []domain.Vote, escrowID domain.ID) Tally {
	var tally Tally
	for _, vote := range votes {
		if !domain.SameID(vote.Escrow, escrowID) {
			continue
		}
		switch vote.Vote {
		case domain.VoteApprove:
			tally.Approve++
		case domain.VoteReject:
			tally.Reject++
		}
	}
	return tally
}

var hundred = decimal.NewFromInt(100)

// Progress returns the funded percentage of the campaign goal rounded to two
// places. A zero goal yields zero.
func Progress(campaign domain.Campaign) decimal.Decimal {
	if !campaign.GoalAmount.IsPositive() {
		return decimal.Zero
	}
	return campaign.CurrentAmount.Mul(hundred).Div(campaign.GoalAmount).Round(2)
}

// NextMilestone returns the lowest milestone above the campaign's progress.
func NextMilestone(campaign domain.Campaign) (domain.Milestone, bool) {
	milestones := make([]domain.Milestone, len(campaign.Milestones))
	copy(milestones, campaign.Milestones)
	sort.Slice(milestones, func(i, j int) bool {
		return milestones[i].Percentage < milestones[j].Percentage
	})

	progress := Progress(campaign)
	for _, milestone := range milestones {
		if decimal.NewFromFloat(milestone.Percentage).GreaterThan(progress) {
			return milestone, true
		}
	}
	return domain.Milestone{}, false
}
