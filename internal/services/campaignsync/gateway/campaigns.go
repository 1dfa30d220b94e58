package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/shopspring/decimal"
)

// FetchCampaign returns the campaign snapshot.
func (c *Client) FetchCampaign(ctx context.Context, campaignID domain.ID) (domain.Campaign, error) {
	var campaign domain.Campaign
	err := c.do(ctx, "fetch_campaign", http.MethodGet, c.endpoint("campaigns", campaignID.String()), nil, &campaign)
	return campaign, err
}

// FetchDonations returns the campaign's donations as the server lists them.
func (c *Client) FetchDonations(ctx context.Context, campaignID domain.ID) ([]domain.Donation, error) {
	var donations []domain.Donation
	err := c.do(ctx, "fetch_donations", http.MethodGet, c.endpoint("donations", "campaign", campaignID.String()), nil, &donations)
	return donations, err
}

// FetchUpdates returns the campaign's updates.
func (c *Client) FetchUpdates(ctx context.Context, campaignID domain.ID) ([]domain.CampaignUpdate, error) {
	var updates []domain.CampaignUpdate
	err := c.do(ctx, "fetch_updates", http.MethodGet, c.endpoint("campaigns", campaignID.String(), "updates"), nil, &updates)
	return updates, err
}

// CreateUpdate posts a new update and returns the stored entity.
func (c *Client) CreateUpdate(ctx context.Context, campaignID domain.ID, update domain.NewUpdate) (domain.CampaignUpdate, error) {
	var created domain.CampaignUpdate
	err := c.do(ctx, "create_update", http.MethodPost, c.endpoint("campaigns", campaignID.String(), "updates"), update, &created)
	return created, err
}

// DeleteUpdate removes one update.
func (c *Client) DeleteUpdate(ctx context.Context, campaignID, updateID domain.ID) error {
	return c.do(ctx, "delete_update", http.MethodDelete, c.endpoint("campaigns", campaignID.String(), "updates", updateID.String()), nil, nil)
}

// FetchCompanions returns the campaign's companions.
func (c *Client) FetchCompanions(ctx context.Context, campaignID domain.ID) ([]domain.Companion, error) {
	var companions []domain.Companion
	err := c.do(ctx, "fetch_companions", http.MethodGet, c.endpoint("campaigns", campaignID.String(), "companions"), nil, &companions)
	return companions, err
}

// JoinCompanion registers the viewer as a companion of the campaign.
func (c *Client) JoinCompanion(ctx context.Context, campaignID domain.ID) (domain.Companion, error) {
	var companion domain.Companion
	err := c.do(ctx, "join_companion", http.MethodPost, c.endpoint("campaigns", campaignID.String(), "companions"), struct{}{}, &companion)
	return companion, err
}

// FetchWithdrawalRequests returns the campaign's escrow withdrawal requests.
func (c *Client) FetchWithdrawalRequests(ctx context.Context, campaignID domain.ID) ([]domain.WithdrawalRequest, error) {
	var requests []domain.WithdrawalRequest
	err := c.do(ctx, "fetch_withdrawal_requests", http.MethodGet, c.endpoint("escrow", "campaigns", campaignID.String(), "withdrawal-requests"), nil, &requests)
	return requests, err
}

// CreateWithdrawalRequest opens a new withdrawal request.
func (c *Client) CreateWithdrawalRequest(ctx context.Context, campaignID domain.ID, request domain.NewWithdrawalRequest) (domain.WithdrawalRequest, error) {
	var created domain.WithdrawalRequest
	err := c.do(ctx, "create_withdrawal_request", http.MethodPost, c.endpoint("escrow", "campaigns", campaignID.String(), "withdrawal-requests"), request, &created)
	return created, err
}

// FetchVotes returns the votes cast on one withdrawal request.
func (c *Client) FetchVotes(ctx context.Context, escrowID domain.ID) ([]domain.Vote, error) {
	var votes []domain.Vote
	err := c.do(ctx, "fetch_votes", http.MethodGet, c.endpoint("escrow", "withdrawal-requests", escrowID.String(), "votes"), nil, &votes)
	return votes, err
}

// SubmitVote casts the viewer's vote on one withdrawal request.
func (c *Client) SubmitVote(ctx context.Context, escrowID domain.ID, vote domain.NewVote) (domain.Vote, error) {
	var cast domain.Vote
	err := c.do(ctx, "submit_vote", http.MethodPost, c.endpoint("escrow", "withdrawal-requests", escrowID.String(), "votes"), vote, &cast)
	return cast, err
}

// FetchAvailableAmount returns the campaign's withdrawable escrow balance.
func (c *Client) FetchAvailableAmount(ctx context.Context, campaignID domain.ID) (decimal.Decimal, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "fetch_available_amount", http.MethodGet, c.endpoint("escrow", "campaigns", campaignID.String(), "available-amount"), nil, &raw); err != nil {
		return decimal.Zero, err
	}
	return decodeAmount(raw)
}

// decodeAmount accepts a bare number or string, or an object naming the
// amount under one of the keys services use for it.
func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var amount decimal.Decimal
	if err := json.Unmarshal(raw, &amount); err == nil {
		return amount, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return decimal.Zero, fmt.Errorf("decode available amount: %w", err)
	}
	for _, key := range []string{"available_amount", "availableAmount", "amount"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, &amount); err != nil {
			return decimal.Zero, fmt.Errorf("decode available amount %s: %w", key, err)
		}
		return amount, nil
	}
	return decimal.Zero, errors.New("available amount missing from response")
}
