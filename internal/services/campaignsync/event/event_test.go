package event

import (
	"encoding/json"
	"testing"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/shopspring/decimal"
)

func TestDecodeDonationWithTotals(t *testing.T) {
	raw := json.RawMessage(`{
		"campaignId": {"_id": "c-1"},
		"donation": {"_id": "d-1", "amount": 500000, "payment_status": "completed", "donor": "u-1"},
		"campaign": {"current_amount": "1500000"}
	}`)

	ev, err := Decode(DonationCreated, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	donation, ok := ev.(Donation)
	if !ok {
		t.Fatalf("event type = %T, want Donation", ev)
	}
	if donation.EventName() != DonationCreated || donation.CampaignID() != "c-1" {
		t.Fatalf("event = %s %s", donation.EventName(), donation.CampaignID())
	}
	if donation.Donation.Campaign != "c-1" {
		t.Fatalf("donation campaign = %q, want c-1", donation.Donation.Campaign)
	}
	if donation.Totals == nil || donation.Totals.CurrentAmount == nil {
		t.Fatal("expected current amount total")
	}
	if !donation.Totals.CurrentAmount.Equal(decimal.NewFromInt(1500000)) {
		t.Fatalf("current amount = %s", donation.Totals.CurrentAmount)
	}
	if donation.Totals.GoalAmount != nil || donation.Totals.Status != nil {
		t.Fatalf("unexpected totals: %+v", donation.Totals)
	}
}

func TestDecodeDonationWithoutTotals(t *testing.T) {
	raw := json.RawMessage(`{"campaignId":"c-1","donation":{"id":"d-1","payment_status":"pending"},"campaign":{}}`)
	ev, err := Decode(DonationStatusChanged, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.(Donation).Totals != nil {
		t.Fatal("empty campaign object should not produce totals")
	}
}

func TestDecodeUpdateEvents(t *testing.T) {
	created, err := Decode(UpdateCreatedName, json.RawMessage(`{"campaignId":12,"update":{"_id":"u-1","content":"hello"}}`))
	if err != nil {
		t.Fatalf("decode created: %v", err)
	}
	update := created.(UpdateCreated)
	if update.Campaign != "12" || update.Update.ID != "u-1" || update.Update.Campaign != "12" {
		t.Fatalf("update created = %+v", update)
	}

	deleted, err := Decode(UpdateDeletedName, json.RawMessage(`{"campaignId":"12","updateId":"u-1"}`))
	if err != nil {
		t.Fatalf("decode deleted: %v", err)
	}
	if got := deleted.(UpdateDeleted); got.UpdateID != "u-1" || got.CampaignID() != domain.ID("12") {
		t.Fatalf("update deleted = %+v", got)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name  string
		event Name
		raw   string
		field string
	}{
		{name: "donation without campaign", event: DonationCreated, raw: `{"donation":{"id":"d-1"}}`, field: "campaignId"},
		{name: "donation without donation", event: DonationUpdated, raw: `{"campaignId":"c-1"}`, field: "donation.id"},
		{name: "donation without id", event: DonationCreated, raw: `{"campaignId":"c-1","donation":{"amount":1}}`, field: "donation.id"},
		{name: "update without id", event: UpdateCreatedName, raw: `{"campaignId":"c-1","update":{"content":"x"}}`, field: "update.id"},
		{name: "deletion without id", event: UpdateDeletedName, raw: `{"campaignId":"c-1"}`, field: "updateId"},
		{name: "not json", event: DonationCreated, raw: `[1,2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.event, json.RawMessage(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if code := apperrors.CodeOf(err); code != apperrors.CodeMalformedPayload {
				t.Fatalf("code = %s, want %s", code, apperrors.CodeMalformedPayload)
			}
			if tt.field == "" {
				return
			}
			var domainErr *apperrors.Error
			if !asDomainError(err, &domainErr) || domainErr.Metadata["field"] != tt.field {
				t.Fatalf("error = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode("campaign:deleted", json.RawMessage(`{}`))
	if code := apperrors.CodeOf(err); code != apperrors.CodeInvalidArgument {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeInvalidArgument)
	}
}

func asDomainError(err error, target **apperrors.Error) bool {
	domainErr, ok := err.(*apperrors.Error)
	if ok {
		*target = domainErr
	}
	return ok
}
