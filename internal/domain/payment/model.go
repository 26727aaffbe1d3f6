package payment

import (
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Payment is an append-only record of a payment reported by the provider.
// Linked to a subscription, a standalone payment intent, or both; at least
// one link must be present.
type Payment struct {
	// Unique identifier for this payment record
	ID string `db:"id" json:"id"`
	// SubscriptionID links to the local subscription record (optional)
	SubscriptionID *string `db:"subscription_id" json:"subscription_id,omitempty"`
	// PaymentIntentID is the provider payment intent ID (optional)
	PaymentIntentID *string `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	// Amount in minor currency units, never negative
	Amount int64 `db:"amount" json:"amount"`
	// Currency is a three-letter ISO code
	Currency string `db:"currency" json:"currency"`
	// Status of this payment
	Status types.PaymentStatus `db:"status" json:"status"`
	// PaidAt is when the payment succeeded (optional)
	PaidAt *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	// FailedAt is when the payment failed (optional)
	FailedAt *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	// Metadata holds provider metadata carried on the event (optional)
	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Payment) Validate() error {
	if p.SubscriptionID == nil && p.PaymentIntentID == nil {
		return ierr.NewError("payment must reference a subscription or a payment intent").
			WithHint("Either subscription_id or payment_intent_id is required").
			Mark(ierr.ErrValidation)
	}
	if p.Amount < 0 {
		return ierr.NewError("invalid amount").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	if err := p.Status.Validate(); err != nil {
		return err
	}
	return nil
}

// DisplayAmount renders the minor-unit amount in major units, e.g. 1999 -> 19.99
func (p *Payment) DisplayAmount() string {
	return decimal.NewFromInt(p.Amount).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func (p *Payment) TableName() string {
	return "payments"
}
