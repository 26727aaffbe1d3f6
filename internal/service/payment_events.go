package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/motorsouq/billing/internal/domain/payment"
	"github.com/motorsouq/billing/internal/email"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// MetadataKeyListingKey carries the listing lookup key on checkout sessions
// and manual payments
const MetadataKeyListingKey = "listing_key"

// MetadataKeyHighlight marks a checkout that bought listing promotion; the
// listing's highlight flag is toggled alongside the paid flag
const MetadataKeyHighlight = "highlight"

type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Customer          externalRef       `json:"customer"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentIntent     externalRef       `json:"payment_intent"`
	Subscription      externalRef       `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

func (p *checkoutSessionPayload) listingKey() string {
	if key := p.Metadata[MetadataKeyListingKey]; key != "" {
		return key
	}
	return p.ClientReferenceID
}

type paymentIntentPayload struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type chargePayload struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	PaymentIntent  externalRef       `json:"payment_intent"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID            string              `json:"id"`
	Customer      externalRef         `json:"customer"`
	Subscription  externalRef         `json:"subscription"`
	PaymentIntent externalRef         `json:"payment_intent"`
	AmountPaid    int64               `json:"amount_paid"`
	AmountDue     int64               `json:"amount_due"`
	Currency      string              `json:"currency"`
	PeriodStart   types.UnixTimestamp `json:"period_start"`
	PeriodEnd     types.UnixTimestamp `json:"period_end"`
}

// PaymentEventService handles the payment-family events: checkout
// completion, payment intents, charges and invoices. Payment records are
// append-only; duplicate suppression is the ledger's job, so handlers here
// never check for prior rows.
type PaymentEventService struct {
	ServiceParams
	executor *SideEffectExecutor
}

func NewPaymentEventService(params ServiceParams, executor *SideEffectExecutor) *PaymentEventService {
	return &PaymentEventService{ServiceParams: params, executor: executor}
}

func (s *PaymentEventService) maxRetries() int {
	if s.Config != nil && s.Config.Billing.MaxSideEffectRetries > 0 {
		return s.Config.Billing.MaxSideEffectRetries
	}
	return DefaultMaxSideEffectRetries
}

func parsePayload(event *stripe.Event, out any) error {
	if event.Data == nil {
		return ierr.NewError("event has no payload").
			WithHint("Payment events must carry the payload object").
			WithReportableDetails(map[string]any{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			}).
			Mark(ierr.ErrValidation)
	}
	if err := json.Unmarshal(event.Data.Raw, out); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse event payload").
			WithReportableDetails(map[string]any{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// HandleCheckoutSessionCompleted marks the referenced listing paid through
// the side-effect executor and appends the succeeded payment
func (s *PaymentEventService) HandleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var payload checkoutSessionPayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}

	if key := payload.listingKey(); key != "" {
		op := SideEffectOperation{
			Name: "mark_listing_paid",
			Run: func(ctx context.Context) error {
				return s.ListingRepo.MarkPaid(ctx, key)
			},
		}
		if err := s.executor.Execute(ctx, op, s.maxRetries()); err != nil {
			return err
		}
		s.Logger.Infow("listing marked paid",
			"event_id", event.ID,
			"listing_key", key,
		)

		if payload.Metadata[MetadataKeyHighlight] == "true" {
			if err := s.highlightListing(ctx, event.ID, key); err != nil {
				return err
			}
		}
	} else {
		s.Logger.Debugw("checkout session has no listing reference",
			"event_id", event.ID,
			"session_id", payload.ID,
		)
	}

	record := &payment.Payment{
		ID:       types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Amount:   payload.AmountTotal,
		Currency: payload.Currency,
		Status:   types.PaymentStatusSucceeded,
		Metadata: payload.Metadata,
	}
	now := time.Now().UTC()
	record.PaidAt = &now
	record.CreatedAt = now
	record.UpdatedAt = now

	if payload.PaymentIntent.ID != "" {
		intentID := payload.PaymentIntent.ID
		record.PaymentIntentID = &intentID
	}
	if payload.Subscription.ID != "" {
		sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.Subscription.ID)
		if err == nil {
			record.SubscriptionID = &sub.ID
		} else if !ierr.IsNotFound(err) {
			return err
		}
	}

	if record.PaymentIntentID == nil && record.SubscriptionID == nil {
		s.Logger.Warnw("checkout session carries no payment reference, skipping payment record",
			"event_id", event.ID,
			"session_id", payload.ID,
		)
		return nil
	}

	if err := record.Validate(); err != nil {
		return err
	}
	return s.PaymentRepo.Create(ctx, record)
}

// highlightListing toggles the promotion flag through the executor. Zero
// affected rows means the listing was not found, which is retried like any
// transient failure and becomes a hard error after exhaustion.
func (s *PaymentEventService) highlightListing(ctx context.Context, eventID, key string) error {
	op := SideEffectOperation{
		Name: "toggle_listing_highlight",
		Run: func(ctx context.Context) error {
			affected, err := s.ListingRepo.ToggleHighlight(ctx, key, true)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ierr.NewError("no listing matched the lookup key").
					WithHint("Highlight toggle affected no rows").
					WithReportableDetails(map[string]any{
						"listing_key": key,
					}).
					Mark(ierr.ErrNotFound)
			}
			return nil
		},
	}
	if err := s.executor.Execute(ctx, op, s.maxRetries()); err != nil {
		return err
	}
	s.Logger.Infow("listing highlighted",
		"event_id", eventID,
		"listing_key", key,
	)
	return nil
}

// HandlePaymentIntentSucceeded appends a succeeded payment keyed by the
// intent ID
func (s *PaymentEventService) HandlePaymentIntentSucceeded(ctx context.Context, event *stripe.Event) error {
	var payload paymentIntentPayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}
	return s.appendIntentPayment(ctx, event, payload.ID, payload.Amount, payload.Currency, payload.Metadata, types.PaymentStatusSucceeded, "")
}

// HandlePaymentIntentFailed appends a failed payment keyed by the intent ID
func (s *PaymentEventService) HandlePaymentIntentFailed(ctx context.Context, event *stripe.Event) error {
	var payload paymentIntentPayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}
	return s.appendIntentPayment(ctx, event, payload.ID, payload.Amount, payload.Currency, payload.Metadata, types.PaymentStatusFailed, payload.LastPaymentError.Message)
}

// HandleChargeSucceeded appends a succeeded payment for the charge's intent
func (s *PaymentEventService) HandleChargeSucceeded(ctx context.Context, event *stripe.Event) error {
	var payload chargePayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}
	if payload.PaymentIntent.ID == "" {
		s.Logger.Warnw("charge carries no payment intent, skipping payment record",
			"event_id", event.ID,
			"charge_id", payload.ID,
		)
		return nil
	}
	return s.appendIntentPayment(ctx, event, payload.PaymentIntent.ID, payload.Amount, payload.Currency, payload.Metadata, types.PaymentStatusSucceeded, "")
}

// HandleChargeFailed appends a failed payment for the charge's intent
func (s *PaymentEventService) HandleChargeFailed(ctx context.Context, event *stripe.Event) error {
	var payload chargePayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}
	if payload.PaymentIntent.ID == "" {
		s.Logger.Warnw("charge carries no payment intent, skipping payment record",
			"event_id", event.ID,
			"charge_id", payload.ID,
		)
		return nil
	}
	return s.appendIntentPayment(ctx, event, payload.PaymentIntent.ID, payload.Amount, payload.Currency, payload.Metadata, types.PaymentStatusFailed, payload.FailureMessage)
}

func (s *PaymentEventService) appendIntentPayment(ctx context.Context, event *stripe.Event, intentID string, amount int64, currency string, metadata map[string]string, status types.PaymentStatus, failureMessage string) error {
	if intentID == "" {
		return ierr.NewError("payment intent id is required").
			WithHint("Payment intent events must carry the intent ID").
			WithReportableDetails(map[string]any{
				"event_id": event.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	now := time.Now().UTC()
	record := &payment.Payment{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentIntentID: &intentID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		Metadata:        metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch status {
	case types.PaymentStatusSucceeded:
		record.PaidAt = &now
	case types.PaymentStatusFailed:
		record.FailedAt = &now
		if failureMessage != "" {
			record.Metadata = withMetadata(record.Metadata, "failure_message", failureMessage)
		}
	}

	if err := record.Validate(); err != nil {
		return err
	}
	if err := s.PaymentRepo.Create(ctx, record); err != nil {
		return err
	}

	s.Logger.Infow("recorded payment",
		"event_id", event.ID,
		"payment_intent_id", intentID,
		"status", status,
		"amount", record.DisplayAmount(),
	)
	return nil
}

// HandleInvoicePaymentSucceeded appends the subscription payment and
// defensively refreshes the billing period the invoice covers. Also serves
// invoice.paid and invoice_payment.paid, which report the same fact.
func (s *PaymentEventService) HandleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var payload invoicePayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}

	now := time.Now().UTC()
	record := &payment.Payment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Amount:    payload.AmountPaid,
		Currency:  payload.Currency,
		Status:    types.PaymentStatusSucceeded,
		PaidAt:    &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if payload.PaymentIntent.ID != "" {
		intentID := payload.PaymentIntent.ID
		record.PaymentIntentID = &intentID
	}

	if payload.Subscription.ID != "" {
		sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.Subscription.ID)
		if err == nil {
			record.SubscriptionID = &sub.ID

			changed := false
			if start, ok := payload.PeriodStart.Time(); ok {
				sub.CurrentPeriodStart = &start
				changed = true
			} else if payload.PeriodStart.IsSet() {
				s.Logger.Warnw("dropping malformed period_start",
					"event_id", event.ID,
					"invoice_id", payload.ID,
				)
			}
			if end, ok := payload.PeriodEnd.Time(); ok {
				sub.CurrentPeriodEnd = &end
				changed = true
			} else if payload.PeriodEnd.IsSet() {
				s.Logger.Warnw("dropping malformed period_end",
					"event_id", event.ID,
					"invoice_id", payload.ID,
				)
			}
			if changed {
				sub.UpdatedAt = now
				if err := s.SubscriptionRepo.Update(ctx, sub); err != nil {
					return err
				}
			}
		} else if !ierr.IsNotFound(err) {
			return err
		} else {
			s.Logger.Warnw("invoice for unknown subscription",
				"event_id", event.ID,
				"subscription_id", payload.Subscription.ID,
			)
		}
	}

	if record.SubscriptionID == nil && record.PaymentIntentID == nil {
		s.Logger.Warnw("invoice carries no payment reference, skipping payment record",
			"event_id", event.ID,
			"invoice_id", payload.ID,
		)
		return nil
	}

	if err := record.Validate(); err != nil {
		return err
	}
	return s.PaymentRepo.Create(ctx, record)
}

// HandleInvoicePaymentFailed appends the failed payment and sends a
// best-effort notice to the owning user
func (s *PaymentEventService) HandleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var payload invoicePayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}

	now := time.Now().UTC()
	record := &payment.Payment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Amount:    payload.AmountDue,
		Currency:  payload.Currency,
		Status:    types.PaymentStatusFailed,
		FailedAt:  &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if payload.PaymentIntent.ID != "" {
		intentID := payload.PaymentIntent.ID
		record.PaymentIntentID = &intentID
	}

	if payload.Subscription.ID != "" {
		sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.Subscription.ID)
		if err == nil {
			record.SubscriptionID = &sub.ID
			if sub.UserID != nil {
				if owner, err := s.UserRepo.Get(ctx, *sub.UserID); err == nil {
					s.Notifier.Dispatch(&email.NotificationRequest{
						TemplateName: email.TemplatePaymentFailed,
						Recipient:    owner.Email,
						Subject:      "Your subscription payment failed",
						Params: map[string]string{
							"name":            owner.Name,
							"subscription_id": sub.ExternalID,
							"amount":          record.DisplayAmount(),
							"currency":        record.Currency,
						},
						RequestID: event.ID,
					})
				}
			}
		} else if !ierr.IsNotFound(err) {
			return err
		}
	}

	if record.SubscriptionID == nil && record.PaymentIntentID == nil {
		s.Logger.Warnw("invoice carries no payment reference, skipping payment record",
			"event_id", event.ID,
			"invoice_id", payload.ID,
		)
		return nil
	}

	if err := record.Validate(); err != nil {
		return err
	}
	return s.PaymentRepo.Create(ctx, record)
}

// HandleInvoiceAcknowledged covers invoice.finalized and invoice.updated,
// which require no local reconciliation
func (s *PaymentEventService) HandleInvoiceAcknowledged(ctx context.Context, event *stripe.Event) error {
	var payload invoicePayload
	if err := parsePayload(event, &payload); err != nil {
		return err
	}
	s.Logger.Infow("acknowledged invoice event",
		"event_id", event.ID,
		"event_type", string(event.Type),
		"invoice_id", payload.ID,
	)
	return nil
}
