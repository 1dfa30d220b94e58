package app

import (
	"context"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/reconcile"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/withdrawal"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"
)

// startFetch runs call off the loop and lands its result on the loop when
// the mount that issued it is still current and the view is open.
func startFetch[T any](v *View, s *viewState, name resource, call func(context.Context) (T, error), land func(*viewState, T, error)) {
	gen := s.gen
	ctx := s.mountCtx
	if ctx == nil {
		ctx = v.ctx
	}
	s.inflight[name] = true

	v.fetches.Add(1)
	go func() {
		defer v.fetches.Done()
		value, err := call(ctx)
		v.post(v.ctx, func(s *viewState) {
			if s.gen != gen || v.ctx.Err() != nil {
				return
			}
			delete(s.inflight, name)
			if err != nil {
				v.metrics.fetchErrors.WithLabelValues(string(name)).Inc()
			}
			land(s, value, err)
			if len(s.inflight) == 0 && s.mountSpan != nil {
				s.mountSpan.End()
				s.mountSpan = nil
			}
			v.publish(s)
		})
	}()
}

func (v *View) fetchCampaign(s *viewState) {
	campaignID := s.campaignID
	startFetch(v, s, resourceCampaign, func(ctx context.Context) (domain.Campaign, error) {
		return v.gateway.FetchCampaign(ctx, campaignID)
	}, func(s *viewState, campaign domain.Campaign, err error) {
		if err != nil {
			v.logger.Error("fetch campaign", "campaign_id", campaignID.String(), "error", err)
			s.status = StatusFailed
			s.err = err
			if s.mountSpan != nil {
				s.mountSpan.RecordError(err)
				s.mountSpan.SetStatus(codes.Error, "campaign fetch failed")
			}
			return
		}
		s.campaign = &campaign
		s.replay(resourceCampaign)
		if s.status != StatusFailed {
			s.status = StatusReady
		}
	})
}

func (v *View) fetchDonations(s *viewState) {
	campaignID := s.campaignID
	startFetch(v, s, resourceDonations, func(ctx context.Context) ([]domain.Donation, error) {
		return v.gateway.FetchDonations(ctx, campaignID)
	}, func(s *viewState, donations []domain.Donation, err error) {
		if err != nil {
			v.logger.Warn("fetch donations", "campaign_id", campaignID.String(), "error", err)
			donations = nil
		}
		s.donations = reconcile.VisibleDonations(donations)
		s.replay(resourceDonations)
	})
}

func (v *View) fetchUpdates(s *viewState) {
	campaignID := s.campaignID
	startFetch(v, s, resourceUpdates, func(ctx context.Context) ([]domain.CampaignUpdate, error) {
		return v.gateway.FetchUpdates(ctx, campaignID)
	}, func(s *viewState, updates []domain.CampaignUpdate, err error) {
		if err != nil {
			v.logger.Warn("fetch updates", "campaign_id", campaignID.String(), "error", err)
			updates = nil
		}
		s.updates = reconcile.SortUpdates(updates)
		s.replay(resourceUpdates)
	})
}

func (v *View) fetchWithdrawals(s *viewState) {
	campaignID := s.campaignID
	startFetch(v, s, resourceWithdrawals, func(ctx context.Context) ([]domain.WithdrawalRequest, error) {
		return v.gateway.FetchWithdrawalRequests(ctx, campaignID)
	}, func(s *viewState, requests []domain.WithdrawalRequest, err error) {
		if err != nil {
			v.logger.Warn("fetch withdrawal requests", "campaign_id", campaignID.String(), "error", err)
			requests = nil
		}
		s.withdrawals = requests
		if open := withdrawal.InProgress(requests); len(open) > 1 {
			v.logger.Warn("several withdrawal requests in voting, treating none as active",
				"campaign_id", campaignID.String(),
				"count", len(open),
			)
		}

		active, ok := withdrawal.ActiveRequest(requests)
		if !ok {
			s.votes = nil
			s.votesFor = ""
			return
		}
		v.fetchVotes(s, active.ID)
	})
}

func (v *View) fetchVotes(s *viewState, escrowID domain.ID) {
	startFetch(v, s, resourceVotes, func(ctx context.Context) ([]domain.Vote, error) {
		return v.gateway.FetchVotes(ctx, escrowID)
	}, func(s *viewState, votes []domain.Vote, err error) {
		if err != nil {
			v.logger.Warn("fetch votes", "escrow_id", escrowID.String(), "error", err)
			votes = nil
		}
		s.votes = votes
		s.votesFor = escrowID
	})
}

func (v *View) fetchAvailableAmount(s *viewState) {
	campaignID := s.campaignID
	startFetch(v, s, resourceAvailableAmount, func(ctx context.Context) (decimal.Decimal, error) {
		return v.gateway.FetchAvailableAmount(ctx, campaignID)
	}, func(s *viewState, amount decimal.Decimal, err error) {
		if err != nil {
			v.logger.Warn("fetch available amount", "campaign_id", campaignID.String(), "error", err)
			amount = decimal.Zero
		}
		s.available = amount
	})
}

func (v *View) fetchCompanions(s *viewState) {
	campaignID := s.campaignID
	startFetch(v, s, resourceCompanions, func(ctx context.Context) ([]domain.Companion, error) {
		return v.gateway.FetchCompanions(ctx, campaignID)
	}, func(s *viewState, companions []domain.Companion, err error) {
		if err != nil {
			v.logger.Warn("fetch companions", "campaign_id", campaignID.String(), "error", err)
			companions = nil
		}
		s.companions = companions
	})
}
