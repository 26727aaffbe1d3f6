package billingevent

import (
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

// BillingEvent is one row of the idempotency ledger: a durable record of
// every provider event ID ever seen and how its processing ended. Rows are
// created once per external event ID and move from processing to a final
// status; success and ignored are terminal, failed is reopened when the
// provider redelivers the event.
type BillingEvent struct {
	// Unique identifier for this ledger row
	ID string `db:"id" json:"id"`
	// EventID is the provider-assigned external event ID, globally unique.
	// A second insert with the same value is a duplicate, not an error.
	EventID string `db:"event_id" json:"event_id"`
	// EventType is the provider event type tag
	EventType types.BillingEventType `db:"event_type" json:"event_type"`
	// ObjectID is the ID of the object the event describes (subscription,
	// payment intent, invoice...)
	ObjectID string `db:"object_id" json:"object_id"`
	// Status is the processing status of this event
	Status types.BillingEventStatus `db:"status" json:"status"`
	// ErrorMessage describes why processing failed (optional)
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	// DurationMs is how long processing took, recorded at finalization
	DurationMs int64 `db:"duration_ms" json:"duration_ms"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// New creates a ledger row in processing state for the given provider event
func New(eventID string, eventType types.BillingEventType, objectID string) *BillingEvent {
	now := time.Now().UTC()
	return &BillingEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_EVENT),
		EventID:   eventID,
		EventType: eventType,
		ObjectID:  objectID,
		Status:    types.BillingEventStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *BillingEvent) Validate() error {
	if e.EventID == "" {
		return ierr.NewError("event id is required").
			WithHint("Provider event ID cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if err := e.Status.Validate(); err != nil {
		return err
	}
	return nil
}

func (e *BillingEvent) TableName() string {
	return "billing_events"
}
