package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/event"
	"github.com/shopspring/decimal"
)

func donation(id string, status domain.PaymentStatus, anonymous bool) domain.Donation {
	return domain.Donation{
		ID:            domain.ID(id),
		Campaign:      "c-1",
		Amount:        decimal.NewFromInt(100),
		PaymentStatus: status,
		IsAnonymous:   anonymous,
		Donor:         domain.Ref{ID: "u-" + domain.ID(id)},
	}
}

func donationEvent(name event.Name, d domain.Donation) event.Donation {
	return event.Donation{Name: name, Campaign: d.Campaign, Donation: d}
}

func ids(donations []domain.Donation) []domain.ID {
	out := make([]domain.ID, 0, len(donations))
	for _, d := range donations {
		out = append(out, d.ID)
	}
	return out
}

func sameIDs(got []domain.ID, want ...domain.ID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestDonationCreatedIsIdempotent(t *testing.T) {
	state := State{CampaignID: "c-1"}
	ev := donationEvent(event.DonationCreated, donation("d-1", domain.PaymentCompleted, false))

	state, first := Apply(state, ev)
	if first.Outcome != Inserted {
		t.Fatalf("first outcome = %s, want %s", first.Outcome, Inserted)
	}
	state, second := Apply(state, ev)
	if second.Outcome != Replaced {
		t.Fatalf("second outcome = %s, want %s", second.Outcome, Replaced)
	}
	if len(state.Donations) != 1 {
		t.Fatalf("donations = %d, want 1", len(state.Donations))
	}
}

func TestPendingDonationRemovesExistingEntry(t *testing.T) {
	state := State{CampaignID: "c-1", Donations: []domain.Donation{donation("d-1", domain.PaymentCompleted, false)}}

	state, result := Apply(state, donationEvent(event.DonationStatusChanged, donation("d-1", domain.PaymentPending, false)))
	if result.Outcome != Removed {
		t.Fatalf("outcome = %s, want %s", result.Outcome, Removed)
	}
	if len(state.Donations) != 0 {
		t.Fatalf("donations = %v, want empty", ids(state.Donations))
	}

	state, result = Apply(state, donationEvent(event.DonationCreated, donation("d-2", domain.PaymentPending, false)))
	if result.Outcome != Ignored || result.Reason != ReasonDonationNotVisible || result.Foreign() {
		t.Fatalf("result = %+v, want ignored not visible", result)
	}
	if len(state.Donations) != 0 {
		t.Fatal("pending donation was added")
	}
}

func TestAnonymousDonationNeverAdded(t *testing.T) {
	state := State{CampaignID: "c-1"}
	state, result := Apply(state, donationEvent(event.DonationCreated, donation("d-1", domain.PaymentCompleted, true)))
	if result.Outcome != Ignored || len(state.Donations) != 0 {
		t.Fatalf("anonymous donation result = %+v, donations = %d", result, len(state.Donations))
	}
}

func TestDonationOrderPreservation(t *testing.T) {
	state := State{CampaignID: "c-1", Donations: []domain.Donation{
		donation("A", domain.PaymentCompleted, false),
		donation("B", domain.PaymentCompleted, false),
		donation("C", domain.PaymentCompleted, false),
	}}

	state, _ = Apply(state, donationEvent(event.DonationCreated, donation("D", domain.PaymentCompleted, false)))
	if got := ids(state.Donations); !sameIDs(got, "D", "A", "B", "C") {
		t.Fatalf("order after insert = %v, want [D A B C]", got)
	}

	changed := donation("B", domain.PaymentCompleted, false)
	changed.Amount = decimal.NewFromInt(999)
	state, result := Apply(state, donationEvent(event.DonationUpdated, changed))
	if result.Outcome != Replaced {
		t.Fatalf("outcome = %s, want %s", result.Outcome, Replaced)
	}
	if got := ids(state.Donations); !sameIDs(got, "D", "A", "B", "C") {
		t.Fatalf("order after replace = %v, want [D A B C]", got)
	}
	if !state.Donations[2].Amount.Equal(decimal.NewFromInt(999)) {
		t.Fatalf("B amount = %s, want 999", state.Donations[2].Amount)
	}
}

func TestCrossCampaignIsolation(t *testing.T) {
	goal := decimal.NewFromInt(10)
	campaign := domain.Campaign{ID: "c-1", CurrentAmount: decimal.NewFromInt(5)}
	state := State{CampaignID: "c-1", Campaign: &campaign}

	other := donation("d-9", domain.PaymentCompleted, false)
	other.Campaign = "c-2"
	ev := event.Donation{Name: event.DonationCreated, Campaign: "c-2", Donation: other, Totals: &event.Totals{CurrentAmount: &goal}}

	next, result := Apply(state, ev)
	if result.Outcome != Ignored || !result.Foreign() || result.Changed() {
		t.Fatalf("result = %+v, want ignored campaign mismatch", result)
	}
	if len(next.Donations) != 0 || !next.Campaign.CurrentAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatal("foreign event mutated state")
	}

	update := domain.CampaignUpdate{ID: "u-1", Campaign: "c-2"}
	next, result = Apply(state, event.UpdateCreated{Campaign: "c-2", Update: update})
	if result.Outcome != Ignored || len(next.Updates) != 0 {
		t.Fatalf("foreign update applied: %+v", result)
	}
}

func TestUpdateCreatedDeduplicates(t *testing.T) {
	state := State{CampaignID: "c-1", Updates: []domain.CampaignUpdate{{ID: "u-1", Content: "old"}}}

	state, result := Apply(state, event.UpdateCreated{Campaign: "c-1", Update: domain.CampaignUpdate{ID: "u-2"}})
	if result.Outcome != Inserted || state.Updates[0].ID != "u-2" {
		t.Fatalf("insert result = %+v, first = %s", result, state.Updates[0].ID)
	}
	state, result = Apply(state, event.UpdateCreated{Campaign: "c-1", Update: domain.CampaignUpdate{ID: "u-1", Content: "new"}})
	if result.Outcome != Replaced || len(state.Updates) != 2 || state.Updates[1].Content != "new" {
		t.Fatalf("replace result = %+v, updates = %+v", result, state.Updates)
	}
}

func TestUpdateDeletionIsIdempotent(t *testing.T) {
	state := State{CampaignID: "c-1", Updates: []domain.CampaignUpdate{{ID: "u-1"}, {ID: "u-2"}}}
	ev := event.UpdateDeleted{Campaign: "c-1", UpdateID: "u-1"}

	state, first := Apply(state, ev)
	if first.Outcome != Removed || len(state.Updates) != 1 {
		t.Fatalf("first delete = %+v, updates = %d", first, len(state.Updates))
	}
	state, second := Apply(state, ev)
	if second.Outcome != Ignored || len(state.Updates) != 1 || state.Updates[0].ID != "u-2" {
		t.Fatalf("second delete = %+v, updates = %+v", second, state.Updates)
	}
}

func TestEndToEndTotals(t *testing.T) {
	raw := json.RawMessage(`{
		"campaignId": "c-1",
		"donation": {"_id": "d-new", "campaign": "c-1", "amount": 500000, "payment_status": "completed", "is_anonymous": false, "donor": {"_id": "u-7"}},
		"campaign": {"current_amount": 1500000}
	}`)
	campaign := domain.Campaign{ID: "c-1", CurrentAmount: decimal.NewFromInt(1000000), GoalAmount: decimal.NewFromInt(5000000)}
	state := State{CampaignID: "c-1", Campaign: &campaign, Donations: []domain.Donation{donation("A", domain.PaymentCompleted, false)}}

	ev, err := event.Decode(event.DonationCreated, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	next, result := Apply(state, ev)
	if !result.Totals || result.Outcome != Inserted {
		t.Fatalf("result = %+v", result)
	}
	if !next.Campaign.CurrentAmount.Equal(decimal.NewFromInt(1500000)) {
		t.Fatalf("current amount = %s, want 1500000", next.Campaign.CurrentAmount)
	}
	if !next.Campaign.GoalAmount.Equal(decimal.NewFromInt(5000000)) {
		t.Fatalf("goal amount changed to %s", next.Campaign.GoalAmount)
	}
	if len(next.Donations) != 2 || next.Donations[0].ID != "d-new" {
		t.Fatalf("donations = %v, want d-new first", ids(next.Donations))
	}
	if !campaign.CurrentAmount.Equal(decimal.NewFromInt(1000000)) {
		t.Fatal("input campaign was modified")
	}
}

func TestTotalsApplyForFilteredDonation(t *testing.T) {
	current := decimal.NewFromInt(20)
	campaign := domain.Campaign{ID: "c-1", CurrentAmount: decimal.NewFromInt(10)}
	state := State{CampaignID: "c-1", Campaign: &campaign}

	ev := event.Donation{
		Name:     event.DonationCreated,
		Campaign: "c-1",
		Donation: donation("d-1", domain.PaymentCompleted, true),
		Totals:   &event.Totals{CurrentAmount: &current},
	}
	next, result := Apply(state, ev)
	if !result.Changed() || !result.Totals || result.Outcome != Ignored {
		t.Fatalf("result = %+v", result)
	}
	if !next.Campaign.CurrentAmount.Equal(current) {
		t.Fatalf("current amount = %s, want 20", next.Campaign.CurrentAmount)
	}
}

func TestVisibleDonationsSortsNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	older := donation("old", domain.PaymentCompleted, false)
	older.CreatedAt = base
	newer := donation("new", domain.PaymentCompleted, false)
	newer.CreatedAt = base.Add(time.Hour)
	hidden := donation("hidden", domain.PaymentCompleted, true)
	hidden.CreatedAt = base.Add(2 * time.Hour)
	pending := donation("pending", domain.PaymentPending, false)

	got := ids(VisibleDonations([]domain.Donation{older, hidden, newer, pending}))
	if !sameIDs(got, "new", "old") {
		t.Fatalf("visible = %v, want [new old]", got)
	}
}

func TestSortUpdatesNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	input := []domain.CampaignUpdate{{ID: "a", CreatedAt: base}, {ID: "b", CreatedAt: base.Add(time.Minute)}}
	sorted := SortUpdates(input)
	if sorted[0].ID != "b" || input[0].ID != "a" {
		t.Fatalf("sorted = %+v, input = %+v", sorted, input)
	}
}

func TestRemoveLeavesInputUntouched(t *testing.T) {
	input := []domain.CampaignUpdate{{ID: "a"}, {ID: "b"}}
	next, outcome := Remove(input, "a", domain.UpdateID)
	if outcome != Removed || len(next) != 1 || len(input) != 2 || input[0].ID != "a" {
		t.Fatalf("Remove() = %+v %s, input = %+v", next, outcome, input)
	}
	if !Contains(input, "b", domain.UpdateID) || Contains(next, "a", domain.UpdateID) {
		t.Fatal("Contains() mismatch")
	}
}
