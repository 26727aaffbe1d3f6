package subscription

import (
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

// Subscription is the canonical local record for one provider subscription.
// The provider re-sends full state on every event, so updates are
// last-write-wins keyed by ExternalID; handlers only apply fields present
// in the incoming event. Rows are never deleted, only moved to canceled.
type Subscription struct {
	// Unique identifier for this subscription record
	ID string `db:"id" json:"id"`
	// ExternalID is the provider-assigned subscription ID, unique
	ExternalID string `db:"external_id" json:"external_id"`
	// ExternalCustomerID is the provider-assigned customer ID
	ExternalCustomerID string `db:"external_customer_id" json:"external_customer_id"`
	// UserID is the owning user. Required for individual accounts; nil for
	// company-scoped subscriptions which are reconciled separately.
	UserID *string `db:"user_id" json:"user_id,omitempty"`
	// Status as reported by the provider
	Status types.SubscriptionStatus `db:"status" json:"status"`
	// PlanID is the provider price/plan identifier
	PlanID string `db:"plan_id" json:"plan_id"`
	// Current billing cycle boundaries, absent while status is incomplete
	CurrentPeriodStart *time.Time `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	// CancelAtPeriodEnd is the scheduled-cancellation flag
	CancelAtPeriodEnd bool `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	// CanceledAt is when the provider recorded the cancellation (optional)
	CanceledAt *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`
	// Metadata holds free-form annotations (cancellation reason, trial end...)
	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Subscription) Validate() error {
	if s.ExternalID == "" {
		return ierr.NewError("external subscription id is required").
			WithHint("External subscription ID cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if err := s.Status.Validate(); err != nil {
		return err
	}
	return nil
}

// IsCompanyScoped reports whether this record has no owning user
func (s *Subscription) IsCompanyScoped() bool {
	return s.UserID == nil
}

func (s *Subscription) TableName() string {
	return "subscriptions"
}
