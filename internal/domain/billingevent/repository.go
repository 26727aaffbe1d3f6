package billingevent

import (
	"context"

	"github.com/motorsouq/billing/internal/types"
)

// Repository is the persistence contract of the idempotency ledger.
//
// Create must rely on the database uniqueness constraint on event_id, not
// a pre-check, and must return an error marked ErrAlreadyExists when a
// concurrent writer already inserted the same external event ID. That mark
// is the duplicate-event signal the dispatcher stands down on.
type Repository interface {
	Create(ctx context.Context, event *BillingEvent) error
	GetByEventID(ctx context.Context, eventID string) (*BillingEvent, error)
	UpdateStatus(ctx context.Context, id string, status types.BillingEventStatus, errorMessage *string, durationMs int64) error
	// Reopen moves a failed record back to processing so a redelivered event
	// can be reprocessed. It must compare-and-swap on the failed status: when
	// the record is in any other state the call returns an error marked
	// ErrInvalidOperation, which the dispatcher treats as losing the race to
	// another worker.
	Reopen(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]*BillingEvent, error)
}
