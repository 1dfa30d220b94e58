package app

import (
	"context"
	"strings"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/reconcile"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/withdrawal"
)

const (
	mutationCreateUpdate            = "create_update"
	mutationDeleteUpdate            = "delete_update"
	mutationSubmitVote              = "submit_vote"
	mutationCreateWithdrawalRequest = "create_withdrawal_request"
	mutationJoinCompanion           = "join_companion"
)

// mount identifies the state a mutation was issued against.
type mount struct {
	gen        uint64
	campaignID domain.ID
}

func (v *View) currentMount(ctx context.Context) (mount, error) {
	var m mount
	var status Status
	if err := v.query(ctx, func(s *viewState) {
		m = mount{gen: s.gen, campaignID: s.campaignID}
		status = s.status
	}); err != nil {
		return mount{}, err
	}
	if m.campaignID.IsZero() {
		return mount{}, apperrors.New(apperrors.CodeInvalidArgument, "no campaign is mounted")
	}
	if status == StatusFailed {
		return mount{}, apperrors.WithMetadata(apperrors.CodeUnavailable, "campaign failed to load", map[string]string{
			"campaign_id": m.campaignID.String(),
		})
	}
	return m, nil
}

// merge runs fn on the loop when the mount m is still current. A merge for
// a previous mount is dropped.
func (v *View) merge(m mount, fn func(*viewState)) {
	v.post(v.ctx, func(s *viewState) {
		if s.gen != m.gen {
			return
		}
		fn(s)
		v.publish(s)
	})
}

func (v *View) mutationFailed(mutation string, m mount, err error) error {
	v.metrics.mutations.WithLabelValues(mutation, "failed").Inc()
	v.logger.Warn("mutation failed", "mutation", mutation, "campaign_id", m.campaignID.String(), "error", err)
	return apperrors.WrapWithMetadata(apperrors.CodeMutationFailed, strings.ReplaceAll(mutation, "_", " "), map[string]string{
		"campaign_id": m.campaignID.String(),
	}, err)
}

func (v *View) mutationRefused(mutation string, err error) error {
	v.metrics.mutations.WithLabelValues(mutation, "refused").Inc()
	return err
}

// CreateUpdate posts a campaign update and merges the stored entity by id,
// so the later realtime echo replaces it in place.
func (v *View) CreateUpdate(ctx context.Context, update domain.NewUpdate) (domain.CampaignUpdate, error) {
	update.Content = strings.TrimSpace(update.Content)
	update.ImageURL = strings.TrimSpace(update.ImageURL)
	if update.Content == "" && update.ImageURL == "" {
		return domain.CampaignUpdate{}, v.mutationRefused(mutationCreateUpdate,
			apperrors.New(apperrors.CodeInvalidArgument, "update content or image is required"))
	}
	m, err := v.currentMount(ctx)
	if err != nil {
		return domain.CampaignUpdate{}, err
	}

	created, err := v.gateway.CreateUpdate(ctx, m.campaignID, update)
	if err != nil {
		return domain.CampaignUpdate{}, v.mutationFailed(mutationCreateUpdate, m, err)
	}
	if created.Campaign.IsZero() {
		created.Campaign = m.campaignID
	}
	v.metrics.mutations.WithLabelValues(mutationCreateUpdate, "ok").Inc()
	if !created.ID.IsZero() {
		v.merge(m, func(s *viewState) {
			s.updates, _ = reconcile.Upsert(s.updates, created, domain.UpdateID)
		})
	}
	return created, nil
}

// DeleteUpdate deletes a campaign update. On failure the update list is
// re-fetched, since the server may have applied the delete.
func (v *View) DeleteUpdate(ctx context.Context, updateID domain.ID) error {
	if updateID.IsZero() {
		return v.mutationRefused(mutationDeleteUpdate, apperrors.New(apperrors.CodeInvalidArgument, "update id is required"))
	}
	m, err := v.currentMount(ctx)
	if err != nil {
		return err
	}

	if err := v.gateway.DeleteUpdate(ctx, m.campaignID, updateID); err != nil {
		v.merge(m, func(s *viewState) {
			v.fetchUpdates(s)
		})
		return v.mutationFailed(mutationDeleteUpdate, m, err)
	}
	v.metrics.mutations.WithLabelValues(mutationDeleteUpdate, "ok").Inc()
	v.merge(m, func(s *viewState) {
		s.updates, _ = reconcile.Remove(s.updates, updateID, domain.UpdateID)
	})
	return nil
}

// SubmitVote casts the viewer's vote on the active withdrawal request. The
// call is refused locally when no request is active or the viewer holds no
// visible donation. After success the request list is re-fetched so server
// tallies refresh.
func (v *View) SubmitVote(ctx context.Context, vote domain.NewVote) (domain.Vote, error) {
	if !vote.Vote.Valid() {
		return domain.Vote{}, v.mutationRefused(mutationSubmitVote,
			apperrors.WithMetadata(apperrors.CodeInvalidArgument, "vote must be approve or reject", map[string]string{
				"vote": string(vote.Vote),
			}))
	}

	var (
		m        mount
		active   domain.WithdrawalRequest
		hasOpen  bool
		eligible bool
		viewerID domain.ID
	)
	if err := v.query(ctx, func(s *viewState) {
		m = mount{gen: s.gen, campaignID: s.campaignID}
		active, hasOpen = withdrawal.ActiveRequest(s.withdrawals)
		eligible = withdrawal.CanVote(s.viewerID, s.donations)
		viewerID = s.viewerID
	}); err != nil {
		return domain.Vote{}, err
	}
	if !hasOpen {
		return domain.Vote{}, v.mutationRefused(mutationSubmitVote,
			apperrors.WithMetadata(apperrors.CodeNoActiveRequest, "no withdrawal request is open for voting", map[string]string{
				"campaign_id": m.campaignID.String(),
			}))
	}
	if !eligible {
		return domain.Vote{}, v.mutationRefused(mutationSubmitVote,
			apperrors.WithMetadata(apperrors.CodeNotEligible, "viewer has no completed donation", map[string]string{
				"campaign_id": m.campaignID.String(),
				"viewer_id":   viewerID.String(),
			}))
	}

	cast, err := v.gateway.SubmitVote(ctx, active.ID, vote)
	if err != nil {
		return domain.Vote{}, v.mutationFailed(mutationSubmitVote, m, err)
	}
	if cast.Escrow.IsZero() {
		cast.Escrow = active.ID
	}
	if cast.Donor.ID.IsZero() {
		cast.Donor.ID = viewerID
	}
	v.metrics.mutations.WithLabelValues(mutationSubmitVote, "ok").Inc()
	v.merge(m, func(s *viewState) {
		if !cast.ID.IsZero() && domain.SameID(s.votesFor, active.ID) {
			s.votes, _ = reconcile.Upsert(s.votes, cast, domain.VoteID)
		}
		v.fetchWithdrawals(s)
	})
	return cast, nil
}

// CreateWithdrawalRequest opens a withdrawal request and merges it by id.
// The available amount is re-fetched afterwards.
func (v *View) CreateWithdrawalRequest(ctx context.Context, request domain.NewWithdrawalRequest) (domain.WithdrawalRequest, error) {
	if !request.Amount.IsPositive() {
		return domain.WithdrawalRequest{}, v.mutationRefused(mutationCreateWithdrawalRequest,
			apperrors.New(apperrors.CodeInvalidArgument, "withdrawal amount must be positive"))
	}
	m, err := v.currentMount(ctx)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}

	created, err := v.gateway.CreateWithdrawalRequest(ctx, m.campaignID, request)
	if err != nil {
		return domain.WithdrawalRequest{}, v.mutationFailed(mutationCreateWithdrawalRequest, m, err)
	}
	if created.Campaign.IsZero() {
		created.Campaign = m.campaignID
	}
	v.metrics.mutations.WithLabelValues(mutationCreateWithdrawalRequest, "ok").Inc()
	v.merge(m, func(s *viewState) {
		if !created.ID.IsZero() {
			s.withdrawals, _ = reconcile.Upsert(s.withdrawals, created, domain.RequestID)
		}
		v.fetchAvailableAmount(s)
	})
	return created, nil
}

// JoinCompanion registers the viewer as a companion and merges the result
// by id.
func (v *View) JoinCompanion(ctx context.Context) (domain.Companion, error) {
	m, err := v.currentMount(ctx)
	if err != nil {
		return domain.Companion{}, err
	}

	companion, err := v.gateway.JoinCompanion(ctx, m.campaignID)
	if err != nil {
		return domain.Companion{}, v.mutationFailed(mutationJoinCompanion, m, err)
	}
	if companion.Campaign.IsZero() {
		companion.Campaign = m.campaignID
	}
	v.metrics.mutations.WithLabelValues(mutationJoinCompanion, "ok").Inc()
	if !companion.ID.IsZero() {
		v.merge(m, func(s *viewState) {
			s.companions, _ = reconcile.Upsert(s.companions, companion, domain.CompanionID)
		})
	}
	return companion, nil
}
