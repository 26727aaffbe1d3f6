package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/motorsouq/billing/internal/domain/billingevent"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

const (
	ledgerReadAttempts  = 3
	ledgerReadBaseDelay = 100 * time.Millisecond
)

// IdempotencyLedger gates all event processing. It records every external
// event ID ever delivered and relies on the ledger table's uniqueness
// constraint to serialize concurrent deliveries of the same event.
type IdempotencyLedger struct {
	ServiceParams
}

func NewIdempotencyLedger(params ServiceParams) *IdempotencyLedger {
	return &IdempotencyLedger{ServiceParams: params}
}

// CheckIdempotency returns the existing ledger record for the event ID, or
// nil when the event has never been seen. Transient read failures are
// retried with exponential backoff; after exhaustion the error surfaces and
// the caller must block processing rather than risk double-processing.
func (l *IdempotencyLedger) CheckIdempotency(ctx context.Context, eventID string) (*billingevent.BillingEvent, error) {
	if eventID == "" {
		return nil, ierr.NewError("event id is required").
			WithHint("Cannot check idempotency without a provider event ID").
			Mark(ierr.ErrValidation)
	}

	var record *billingevent.BillingEvent
	operation := func() error {
		existing, err := l.BillingEventRepo.GetByEventID(ctx, eventID)
		if err != nil {
			if ierr.IsNotFound(err) {
				return nil
			}
			l.Logger.Warnw("idempotency check read failed, retrying",
				"event_id", eventID,
				"error", err,
			)
			return err
		}
		record = existing
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ledgerReadBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, ledgerReadAttempts-1), ctx))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Idempotency check failed after %d attempts", ledgerReadAttempts).
			WithReportableDetails(map[string]any{
				"event_id": eventID,
			}).
			Mark(ierr.ErrDatabase)
	}

	return record, nil
}

// Create inserts a processing-state ledger record for the event. Losing the
// insert race to a concurrent worker surfaces an ErrAlreadyExists-marked
// error; the caller treats that as the duplicate signal, not a failure.
func (l *IdempotencyLedger) Create(ctx context.Context, eventID string, eventType types.BillingEventType, objectID string) (*billingevent.BillingEvent, error) {
	record := billingevent.New(eventID, eventType, objectID)
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := l.BillingEventRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Reopen moves a failed record back to processing so a redelivered event can
// be reprocessed. Failure is not terminal in the ledger: the provider's
// redelivery mechanism is the retry path, and a row stuck in failed would
// leave its event permanently unreconcilable. Losing the reopen race to a
// concurrent worker surfaces an ErrInvalidOperation-marked error.
func (l *IdempotencyLedger) Reopen(ctx context.Context, id string) error {
	return l.BillingEventRepo.Reopen(ctx, id)
}

// MarkSuccess finalizes the record as successfully processed
func (l *IdempotencyLedger) MarkSuccess(ctx context.Context, id string, durationMs int64) error {
	return l.BillingEventRepo.UpdateStatus(ctx, id, types.BillingEventStatusSuccess, nil, durationMs)
}

// MarkFailed finalizes the record with the handler's failure detail
func (l *IdempotencyLedger) MarkFailed(ctx context.Context, id string, detail string, durationMs int64) error {
	return l.BillingEventRepo.UpdateStatus(ctx, id, types.BillingEventStatusFailed, &detail, durationMs)
}

// MarkIgnored finalizes the record for an event type the pipeline does not
// handle, recording why it was ignored
func (l *IdempotencyLedger) MarkIgnored(ctx context.Context, id string, reason string, durationMs int64) error {
	return l.BillingEventRepo.UpdateStatus(ctx, id, types.BillingEventStatusIgnored, &reason, durationMs)
}
