package types

import (
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/samber/lo"
)

// ManualPaymentStatus is the lifecycle of a human-mediated payment request.
// These have no provider event source, so they live outside the event
// ledger and carry their own transition rules.
type ManualPaymentStatus string

const (
	ManualPaymentStatusPending    ManualPaymentStatus = "pending"
	ManualPaymentStatusApproved   ManualPaymentStatus = "approved"
	ManualPaymentStatusRejected   ManualPaymentStatus = "rejected"
	ManualPaymentStatusProcessing ManualPaymentStatus = "processing"
	ManualPaymentStatusCompleted  ManualPaymentStatus = "completed"
)

func (s ManualPaymentStatus) String() string {
	return string(s)
}

func (s ManualPaymentStatus) Validate() error {
	allowed := []ManualPaymentStatus{
		ManualPaymentStatusPending,
		ManualPaymentStatusApproved,
		ManualPaymentStatusRejected,
		ManualPaymentStatusProcessing,
		ManualPaymentStatusCompleted,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid manual payment status").
			WithHint("Invalid manual payment status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

var manualPaymentTransitions = map[ManualPaymentStatus][]ManualPaymentStatus{
	ManualPaymentStatusPending:    {ManualPaymentStatusApproved, ManualPaymentStatusRejected},
	ManualPaymentStatusApproved:   {ManualPaymentStatusProcessing},
	ManualPaymentStatusProcessing: {ManualPaymentStatusCompleted, ManualPaymentStatusRejected},
	ManualPaymentStatusRejected:   {},
	ManualPaymentStatusCompleted:  {},
}

// CanTransitionTo reports whether the move is allowed by the lifecycle
func (s ManualPaymentStatus) CanTransitionTo(next ManualPaymentStatus) bool {
	return lo.Contains(manualPaymentTransitions[s], next)
}
