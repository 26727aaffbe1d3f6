package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// OutcomeType classifies how an event delivery ended
type OutcomeType string

const (
	// OutcomeProcessed means the matching handler ran to completion
	OutcomeProcessed OutcomeType = "processed"
	// OutcomeIgnored means the event type is not handled by this pipeline
	OutcomeIgnored OutcomeType = "ignored"
	// OutcomeDuplicate means the event ID was already seen; processing was
	// abandoned without touching any other writer's work
	OutcomeDuplicate OutcomeType = "duplicate"
)

// Outcome is the structured result of one event delivery. Duplicates are a
// variant here, never an error: redelivery is expected provider behavior.
type Outcome struct {
	Type   OutcomeType `json:"type"`
	Reason string      `json:"reason,omitempty"`
}

// EventHandler processes one parsed provider event
type EventHandler func(ctx context.Context, event *stripe.Event) error

// EventDispatcher routes provider events to handlers through the
// idempotency ledger. All dependencies are injected at construction; the
// dispatcher holds no global state.
type EventDispatcher struct {
	ServiceParams
	ledger   *IdempotencyLedger
	handlers map[types.BillingEventType]EventHandler
}

func NewEventDispatcher(
	params ServiceParams,
	ledger *IdempotencyLedger,
	lifecycle *SubscriptionLifecycleService,
	payments *PaymentEventService,
) *EventDispatcher {
	d := &EventDispatcher{
		ServiceParams: params,
		ledger:        ledger,
	}

	d.handlers = map[types.BillingEventType]EventHandler{
		types.EventCheckoutSessionCompleted:         payments.HandleCheckoutSessionCompleted,
		types.EventSubscriptionCreated:              lifecycle.HandleSubscriptionCreated,
		types.EventSubscriptionUpdated:              lifecycle.HandleSubscriptionUpdated,
		types.EventSubscriptionDeleted:              lifecycle.HandleSubscriptionDeleted,
		types.EventSubscriptionPendingUpdateApplied: lifecycle.HandlePendingUpdateApplied,
		types.EventSubscriptionPendingUpdateExpired: lifecycle.HandlePendingUpdateExpired,
		types.EventSubscriptionTrialWillEnd:         lifecycle.HandleTrialWillEnd,
		types.EventPaymentIntentSucceeded:           payments.HandlePaymentIntentSucceeded,
		types.EventPaymentIntentPaymentFailed:       payments.HandlePaymentIntentFailed,
		types.EventChargeSucceeded:                  payments.HandleChargeSucceeded,
		types.EventChargeFailed:                     payments.HandleChargeFailed,
		types.EventInvoicePaymentSucceeded:          payments.HandleInvoicePaymentSucceeded,
		types.EventInvoicePaymentFailed:             payments.HandleInvoicePaymentFailed,
		types.EventInvoiceFinalized:                 payments.HandleInvoiceAcknowledged,
		types.EventInvoiceUpdated:                   payments.HandleInvoiceAcknowledged,
		types.EventInvoicePaid:                      payments.HandleInvoicePaymentSucceeded,
		types.EventInvoicePaymentPaid:               payments.HandleInvoicePaymentSucceeded,
	}

	return d
}

// ProcessEvent reconciles one provider event delivery. The ledger insert
// serializes first deliveries and the reopen compare-and-swap serializes
// redeliveries of failed ones: of two workers racing on the same event ID
// exactly one proceeds, the other observes the duplicate outcome.
func (d *EventDispatcher) ProcessEvent(ctx context.Context, event *stripe.Event) (*Outcome, error) {
	if event == nil || event.ID == "" {
		return nil, ierr.NewError("event id is required").
			WithHint("Provider events must carry an event ID").
			Mark(ierr.ErrValidation)
	}

	eventType := types.BillingEventType(event.Type)
	start := time.Now()

	existing, err := d.ledger.CheckIdempotency(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != types.BillingEventStatusFailed {
		d.Logger.Infow("event already seen, standing down",
			"event_id", event.ID,
			"event_type", eventType,
			"ledger_status", existing.Status,
		)
		return &Outcome{Type: OutcomeDuplicate, Reason: "event already processed"}, nil
	}

	record := existing
	if record != nil {
		// A failed record is not terminal: redelivery is the retry path, so
		// the row is reopened and the handler runs again.
		if err := d.ledger.Reopen(ctx, record.ID); err != nil {
			if ierr.IsInvalidOperation(err) {
				d.Logger.Infow("lost reopen race, another worker owns this event",
					"event_id", event.ID,
					"event_type", eventType,
				)
				return &Outcome{Type: OutcomeDuplicate, Reason: "another worker owns this event"}, nil
			}
			return nil, err
		}
		d.Logger.Infow("reprocessing previously failed event",
			"event_id", event.ID,
			"event_type", eventType,
		)
	} else {
		record, err = d.ledger.Create(ctx, event.ID, eventType, objectIDFromEvent(event))
		if err != nil {
			if ierr.IsAlreadyExists(err) {
				d.Logger.Infow("lost insert race, another worker owns this event",
					"event_id", event.ID,
					"event_type", eventType,
				)
				return &Outcome{Type: OutcomeDuplicate, Reason: "another worker owns this event"}, nil
			}
			return nil, err
		}
	}

	handler, ok := d.handlers[eventType]
	if !ok {
		reason := fmt.Sprintf("unhandled event type %s", eventType)
		d.Logger.Infow("ignoring event",
			"event_id", event.ID,
			"event_type", eventType,
		)
		d.finalize(ctx, record.ID, event, func() error {
			return d.ledger.MarkIgnored(ctx, record.ID, reason, elapsedMs(start))
		})
		return &Outcome{Type: OutcomeIgnored, Reason: reason}, nil
	}

	if err := handler(ctx, event); err != nil {
		d.Logger.Errorw("event handler failed",
			"event_id", event.ID,
			"event_type", eventType,
			"error", err,
		)
		d.finalize(ctx, record.ID, event, func() error {
			return d.ledger.MarkFailed(ctx, record.ID, err.Error(), elapsedMs(start))
		})
		return nil, err
	}

	d.finalize(ctx, record.ID, event, func() error {
		return d.ledger.MarkSuccess(ctx, record.ID, elapsedMs(start))
	})

	return &Outcome{Type: OutcomeProcessed}, nil
}

func (d *EventDispatcher) finalize(ctx context.Context, recordID string, event *stripe.Event, mark func() error) {
	if err := mark(); err != nil {
		d.Logger.Errorw("failed to finalize ledger record",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"record_id", recordID,
			"error", err,
		)
	}
}

// objectIDFromEvent pulls the payload object's id, best effort. The ledger
// stores it for operators; id and type are the only guaranteed fields.
func objectIDFromEvent(event *stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return ""
	}
	return obj.ID
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
