package types

import (
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the status of a subscription.
// The provider is authoritative: handlers accept the reported status and
// never infer transitions locally.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired,
		SubscriptionStatusPastDue,
		SubscriptionStatusTrialing,
		SubscriptionStatusUnpaid,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsIncomplete reports whether period fields are not expected for this status
func (s SubscriptionStatus) IsIncomplete() bool {
	return s == SubscriptionStatusIncomplete || s == SubscriptionStatusIncompleteExpired
}

// IsEntitling reports whether this status grants premium entitlement.
// Trialing subscribers are entitled the same as paying ones.
func (s SubscriptionStatus) IsEntitling() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// CancellationReason records why a subscription ended. Derived on the
// deleted event with a fixed priority order, see the lifecycle service.
type CancellationReason string

const (
	CancellationReasonUnpaid        CancellationReason = "unpaid"
	CancellationReasonEndOfPeriod   CancellationReason = "end_of_period"
	CancellationReasonUserRequested CancellationReason = "user_requested"
)

func (r CancellationReason) String() string {
	return string(r)
}

// Metadata keys shared between handlers and persisted subscription rows
const (
	MetadataKeyCancellationReason = "cancellation_reason"
	MetadataKeyAccountScope       = "account_scope"
	MetadataKeyTrialEndsAt        = "trial_ends_at"
	MetadataKeyPendingUpdate      = "pending_update"

	// AccountScopeCompany marks subscriptions owned by a company account;
	// those have no owning user and are reconciled through a separate path.
	AccountScopeCompany = "company"
)
