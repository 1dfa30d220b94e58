package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a withdrawal request.
type RequestStatus string

const (
	RequestPendingVoting    RequestStatus = "pending_voting"
	RequestVotingInProgress RequestStatus = "voting_in_progress"
	RequestVotingCompleted  RequestStatus = "voting_completed"
	RequestAdminApproved    RequestStatus = "admin_approved"
	RequestAdminRejected    RequestStatus = "admin_rejected"
	RequestReleased         RequestStatus = "released"
	RequestCancelled        RequestStatus = "cancelled"
)

// WithdrawalRequest asks donors to approve releasing escrowed funds. The
// tally fields are computed by the escrow service.
type WithdrawalRequest struct {
	ID                  ID              `json:"id"`
	Campaign            ID              `json:"campaign"`
	Status              RequestStatus   `json:"request_status"`
	Amount              decimal.Decimal `json:"amount"`
	AutoCreated         bool            `json:"auto_created"`
	MilestonePercentage float64         `json:"milestone_percentage,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	ApproveCount        int             `json:"approve_count"`
	RejectCount         int             `json:"reject_count"`
	VotingEndDate       *time.Time      `json:"voting_end_date,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// RequestID extracts the identifier, for the generic merge helpers.
func RequestID(r WithdrawalRequest) ID { return r.ID }

// UnmarshalJSON falls back to _id when id is absent.
func (r *WithdrawalRequest) UnmarshalJSON(data []byte) error {
	type plain WithdrawalRequest
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.ID.IsZero() {
		value.ID = fallbackID(data)
	}
	*r = WithdrawalRequest(value)
	return nil
}

// NewWithdrawalRequest is the body of a create-withdrawal-request call.
type NewWithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

// VoteChoice is a donor's decision on a withdrawal request.
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
)

// Valid reports whether the choice is one the escrow service accepts.
func (c VoteChoice) Valid() bool {
	return c == VoteApprove || c == VoteReject
}

// Vote is one donor's decision on a withdrawal request.
type Vote struct {
	ID        ID         `json:"id"`
	Escrow    ID         `json:"escrow"`
	Donor     Ref        `json:"donor"`
	Vote      VoteChoice `json:"vote"`
	Comment   string     `json:"comment,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// VoteID extracts the identifier, for the generic merge helpers.
func VoteID(v Vote) ID { return v.ID }

// UnmarshalJSON falls back to _id when id is absent.
func (v *Vote) UnmarshalJSON(data []byte) error {
	type plain Vote
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.ID.IsZero() {
		value.ID = fallbackID(data)
	}
	*v = Vote(value)
	return nil
}

// NewVote is the body of a submit-vote call.
type NewVote struct {
	Vote    VoteChoice `json:"vote"`
	Comment string     `json:"comment,omitempty"`
}
