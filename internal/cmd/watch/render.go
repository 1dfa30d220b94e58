package watch

import (
	"strings"

	"github.com/kindfund/campaignsync/internal/platform/i18n"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/app"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/withdrawal"
	"golang.org/x/text/message"
)

// Render summarizes a snapshot on one line.
func Render(p *message.Printer, snapshot app.Snapshot) string {
	var b strings.Builder
	b.WriteString(p.Sprintf("campaign %s [%s]", snapshot.CampaignID, snapshot.Status))

	switch snapshot.Status {
	case app.StatusFailed:
		if snapshot.Err != nil {
			b.WriteString(": ")
			b.WriteString(snapshot.Err.Error())
		}
		return b.String()
	case app.StatusLoading:
		b.WriteString(p.Sprintf(" pending=%d", snapshot.Pending))
		return b.String()
	}

	if campaign := snapshot.Campaign; campaign != nil {
		if title := strings.TrimSpace(campaign.Title); title != "" {
			b.WriteString(p.Sprintf(" %q", title))
		}
		b.WriteString(p.Sprintf(" raised %s of %s (%s)",
			i18n.FormatAmount(p, campaign.CurrentAmount),
			i18n.FormatAmount(p, campaign.GoalAmount),
			i18n.FormatPercent(p, withdrawal.Progress(*campaign)),
		))
		if milestone, ok := withdrawal.NextMilestone(*campaign); ok {
			b.WriteString(p.Sprintf(" next_milestone=%v%%", milestone.Percentage))
		}
	}
	b.WriteString(p.Sprintf(" available %s", i18n.FormatAmount(p, snapshot.AvailableAmount)))
	b.WriteString(p.Sprintf(" donations=%d updates=%d withdrawals=%d companions=%d",
		len(snapshot.Donations), len(snapshot.Updates), len(snapshot.Withdrawals), len(snapshot.Companions)))

	if active := snapshot.ActiveRequest; active != nil {
		tally := withdrawal.TallyVotes(snapshot.Votes, active.ID)
		b.WriteString(p.Sprintf(" active_request=%s approve=%d reject=%d can_vote=%t",
			active.ID, tally.Approve, tally.Reject, snapshot.CanVote))
		if vote := snapshot.ViewerVote; vote != nil {
			b.WriteString(p.Sprintf(" voted=%s", vote.Vote))
		}
	}
	if snapshot.Pending > 0 {
		b.WriteString(p.Sprintf(" pending=%d", snapshot.Pending))
	}
	return b.String()
}
