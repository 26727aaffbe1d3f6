package manualpayment

import (
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

// Request is a human-mediated payment request, e.g. a bank transfer for a
// listing promotion. It has no provider event source, so it lives outside
// the event ledger with its own reviewed lifecycle.
type Request struct {
	// Unique identifier for this request
	ID string `db:"id" json:"id"`
	// UserID is the requesting user
	UserID string `db:"user_id" json:"user_id"`
	// ListingKey is the lookup key of the listing being paid for
	ListingKey string `db:"listing_key" json:"listing_key"`
	// Amount in minor currency units
	Amount int64 `db:"amount" json:"amount"`
	// Currency is a three-letter ISO code
	Currency string `db:"currency" json:"currency"`
	// Status of the review lifecycle
	Status types.ManualPaymentStatus `db:"status" json:"status"`
	// ReviewerNote is set on approval or rejection (optional)
	ReviewerNote *string `db:"reviewer_note" json:"reviewer_note,omitempty"`
	// ReviewedAt is when a reviewer acted on the request (optional)
	ReviewedAt *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	// CompletedAt is when the payment was fully reconciled (optional)
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (r *Request) Validate() error {
	if r.UserID == "" {
		return ierr.NewError("user id is required").
			WithHint("Manual payment requests must belong to a user").
			Mark(ierr.ErrValidation)
	}
	if r.ListingKey == "" {
		return ierr.NewError("listing key is required").
			WithHint("Manual payment requests must reference a listing").
			Mark(ierr.ErrValidation)
	}
	if r.Amount <= 0 {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	return nil
}

func (r *Request) TableName() string {
	return "manual_payment_requests"
}
