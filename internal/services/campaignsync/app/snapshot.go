package app

import (
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/shopspring/decimal"
)

// Status is the load state of a view.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	// StatusFailed is terminal for a mount: the campaign could not be fetched.
	StatusFailed Status = "failed"
	StatusClosed Status = "closed"
)

// Snapshot is an immutable copy of a view's state. Slices are shared with
// the view and must not be modified.
type Snapshot struct {
	Generation uint64
	CampaignID domain.ID
	ViewerID   domain.ID
	Status     Status
	Err        error
	// Pending counts REST fetches still in flight.
	Pending int

	Campaign        *domain.Campaign
	Donations       []domain.Donation
	Updates         []domain.CampaignUpdate
	Withdrawals     []domain.WithdrawalRequest
	Votes           []domain.Vote
	AvailableAmount decimal.Decimal
	Companions      []domain.Companion

	// ActiveRequest is the single withdrawal request open for voting.
	ActiveRequest *domain.WithdrawalRequest
	// CanVote is the client-side eligibility hint for the viewer.
	CanVote bool
	// ViewerVote is the viewer's vote on ActiveRequest, if cast.
	ViewerVote *domain.Vote
}

// Ready reports whether the campaign has loaded.
func (s Snapshot) Ready() bool {
	return s.Status == StatusReady
}
