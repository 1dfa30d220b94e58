package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment state of a donation.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Donation is a single contribution to a campaign.
type Donation struct {
	ID            ID              `json:"id"`
	Campaign      ID              `json:"campaign"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	IsAnonymous   bool            `json:"is_anonymous"`
	Donor         Ref             `json:"donor"`
	Message       string          `json:"message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Visible reports whether the donation may appear in a public donation list:
// completed and not anonymous.
func (d Donation) Visible() bool {
	return d.PaymentStatus == PaymentCompleted && !d.IsAnonymous
}

// DonationID extracts the identifier, for the generic merge helpers.
func DonationID(d Donation) ID { return d.ID }

// UnmarshalJSON falls back to _id when id is absent.
func (d *Donation) UnmarshalJSON(data []byte) error {
	type plain Donation
	var value plain
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value.ID.IsZero() {
		value.ID = fallbackID(data)
	}
	*d = Donation(value)
	return nil
}
