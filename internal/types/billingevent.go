package types

import (
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/samber/lo"
)

// BillingEventType identifies the provider webhook event families the
// dispatcher knows how to route. The provider adds types over time, so an
// unknown value is not an error anywhere in the pipeline.
type BillingEventType string

const (
	EventCheckoutSessionCompleted         BillingEventType = "checkout.session.completed"
	EventSubscriptionCreated              BillingEventType = "customer.subscription.created"
	EventSubscriptionUpdated              BillingEventType = "customer.subscription.updated"
	EventSubscriptionDeleted              BillingEventType = "customer.subscription.deleted"
	EventSubscriptionPendingUpdateApplied BillingEventType = "customer.subscription.pending_update_applied"
	EventSubscriptionPendingUpdateExpired BillingEventType = "customer.subscription.pending_update_expired"
	EventSubscriptionTrialWillEnd         BillingEventType = "customer.subscription.trial_will_end"
	EventPaymentIntentSucceeded           BillingEventType = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed       BillingEventType = "payment_intent.payment_failed"
	EventChargeSucceeded                  BillingEventType = "charge.succeeded"
	EventChargeFailed                     BillingEventType = "charge.failed"
	EventInvoicePaymentSucceeded          BillingEventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed             BillingEventType = "invoice.payment_failed"
	EventInvoiceFinalized                 BillingEventType = "invoice.finalized"
	EventInvoiceUpdated                   BillingEventType = "invoice.updated"
	EventInvoicePaid                      BillingEventType = "invoice.paid"
	EventInvoicePaymentPaid               BillingEventType = "invoice_payment.paid"
)

func (t BillingEventType) String() string {
	return string(t)
}

// BillingEventStatus is the processing status of a ledger record
type BillingEventStatus string

const (
	BillingEventStatusProcessing BillingEventStatus = "processing"
	BillingEventStatusSuccess    BillingEventStatus = "success"
	BillingEventStatusFailed     BillingEventStatus = "failed"
	BillingEventStatusIgnored    BillingEventStatus = "ignored"
)

func (s BillingEventStatus) String() string {
	return string(s)
}

func (s BillingEventStatus) Validate() error {
	allowed := []BillingEventStatus{
		BillingEventStatusProcessing,
		BillingEventStatusSuccess,
		BillingEventStatusFailed,
		BillingEventStatusIgnored,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid billing event status").
			WithHint("Invalid billing event status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether the record may no longer transition
func (s BillingEventStatus) IsTerminal() bool {
	return s == BillingEventStatusSuccess ||
		s == BillingEventStatusFailed ||
		s == BillingEventStatusIgnored
}
