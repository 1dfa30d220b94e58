package app

import (
	"context"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/event"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/reconcile"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/withdrawal"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// resource names one REST-backed part of the view.
type resource string

const (
	resourceCampaign        resource = "campaign"
	resourceDonations       resource = "donations"
	resourceUpdates         resource = "updates"
	resourceWithdrawals     resource = "withdrawal_requests"
	resourceVotes           resource = "votes"
	resourceAvailableAmount resource = "available_amount"
	resourceCompanions      resource = "companions"
)

// viewState is owned by the view loop goroutine.
type viewState struct {
	gen        uint64
	campaignID domain.ID
	viewerID   domain.ID
	status     Status
	err        error

	campaign    *domain.Campaign
	donations   []domain.Donation
	updates     []domain.CampaignUpdate
	withdrawals []domain.WithdrawalRequest
	votes       []domain.Vote
	votesFor    domain.ID
	available   decimal.Decimal
	companions  []domain.Companion

	inflight map[resource]bool
	// pending holds events applied while a replayable fetch was in flight.
	pending []event.Event

	mountCtx    context.Context
	mountCancel context.CancelFunc
	mountSpan   trace.Span
}

func (s *viewState) reset(campaignID domain.ID) {
	s.gen++
	s.campaignID = campaignID
	s.status = StatusLoading
	s.err = nil
	s.campaign = nil
	s.donations = nil
	s.updates = nil
	s.withdrawals = nil
	s.votes = nil
	s.votesFor = ""
	s.available = decimal.Zero
	s.companions = nil
	s.inflight = make(map[resource]bool)
	s.pending = nil
}

// endMount cancels the current mount's requests and ends its span.
func (s *viewState) endMount() {
	if s.mountCancel != nil {
		s.mountCancel()
		s.mountCancel = nil
	}
	if s.mountSpan != nil {
		s.mountSpan.End()
		s.mountSpan = nil
	}
}

func (s *viewState) reconcileState() reconcile.State {
	return reconcile.State{
		CampaignID: s.campaignID,
		Campaign:   s.campaign,
		Donations:  s.donations,
		Updates:    s.updates,
	}
}

func (s *viewState) setReconcileState(state reconcile.State) {
	s.campaign = state.Campaign
	s.donations = state.Donations
	s.updates = state.Updates
}

// replayable reports whether a fetch that realtime events touch is in
// flight.
func (s *viewState) replayable() bool {
	return s.inflight[resourceCampaign] || s.inflight[resourceDonations] || s.inflight[resourceUpdates]
}

// replay re-applies pending events to a freshly landed resource so the
// result matches receiving the snapshot before the events.
func (s *viewState) replay(target resource) {
	for _, ev := range s.pending {
		switch e := ev.(type) {
		case event.Donation:
			switch target {
			case resourceDonations:
				s.donations, _ = reconcile.MergeVisible(s.donations, e.Donation, domain.DonationID, domain.Donation.Visible)
			case resourceCampaign:
				if e.Totals != nil && s.campaign != nil {
					campaign := reconcile.ApplyTotals(*s.campaign, *e.Totals)
					s.campaign = &campaign
				}
			}
		case event.UpdateCreated:
			if target == resourceUpdates {
				s.updates, _ = reconcile.Upsert(s.updates, e.Update, domain.UpdateID)
			}
		case event.UpdateDeleted:
			if target == resourceUpdates {
				s.updates, _ = reconcile.Remove(s.updates, e.UpdateID, domain.UpdateID)
			}
		}
	}
	if !s.replayable() {
		s.pending = nil
	}
}

// snapshot copies the state and derives the escrow facts.
func (s *viewState) snapshot() Snapshot {
	snap := Snapshot{
		Generation:      s.gen,
		CampaignID:      s.campaignID,
		ViewerID:        s.viewerID,
		Status:          s.status,
		Err:             s.err,
		Pending:         len(s.inflight),
		Donations:       s.donations,
		Updates:         s.updates,
		Withdrawals:     s.withdrawals,
		Votes:           s.votes,
		AvailableAmount: s.available,
		Companions:      s.companions,
		CanVote:         withdrawal.CanVote(s.viewerID, s.donations),
	}
	if s.campaign != nil {
		campaign := *s.campaign
		snap.Campaign = &campaign
	}
	if active, ok := withdrawal.ActiveRequest(s.withdrawals); ok {
		snap.ActiveRequest = &active
		if vote, ok := withdrawal.ViewerVote(s.votes, active.ID, s.viewerID); ok {
			snap.ViewerVote = &vote
		}
	}
	return snap
}

func campaignAttr(campaignID domain.ID) attribute.KeyValue {
	return attribute.String("campaignsync.campaign_id", campaignID.String())
}
