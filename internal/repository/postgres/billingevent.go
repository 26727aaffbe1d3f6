package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/motorsouq/billing/internal/domain/billingevent"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/postgres"
	"github.com/motorsouq/billing/internal/types"
)

// pqUniqueViolation is the postgres error code for unique_violation
const pqUniqueViolation = "23505"

type billingEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillingEventRepository(db *postgres.DB, logger *logger.Logger) billingevent.Repository {
	return &billingEventRepository{db: db, logger: logger}
}

// Create inserts the ledger row. The unique index on event_id is the
// concurrency primitive: a losing writer gets ErrAlreadyExists from the
// constraint itself, never from a racy pre-check.
func (r *billingEventRepository) Create(ctx context.Context, event *billingevent.BillingEvent) error {
	query := `
		INSERT INTO billing_events (
			id,
			event_id,
			event_type,
			object_id,
			status,
			error_message,
			duration_ms,
			created_at,
			updated_at
		) VALUES (
			:id,
			:event_id,
			:event_type,
			:object_id,
			:status,
			:error_message,
			:duration_ms,
			:created_at,
			:updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return ierr.WithError(err).
				WithHintf("Event %s was already recorded by another worker", event.EventID).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create billing event record").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *billingEventRepository) GetByEventID(ctx context.Context, eventID string) (*billingevent.BillingEvent, error) {
	query := `SELECT * FROM billing_events WHERE event_id = $1`

	var event billingevent.BillingEvent
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &event, query, eventID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No billing event found for event ID %s", eventID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get billing event record").
			Mark(ierr.ErrDatabase)
	}

	return &event, nil
}

func (r *billingEventRepository) UpdateStatus(ctx context.Context, id string, status types.BillingEventStatus, errorMessage *string, durationMs int64) error {
	query := `
		UPDATE billing_events SET
			status = $2,
			error_message = $3,
			duration_ms = $4,
			updated_at = $5
		WHERE id = $1 AND status = $6`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query, id, status, errorMessage, durationMs, time.Now().UTC(), types.BillingEventStatusProcessing)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update billing event status").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("billing event is not in processing state").
			WithHintf("Record %s was already finalized", id).
			Mark(ierr.ErrInvalidOperation)
	}

	return nil
}

// Reopen flips a failed row back to processing. The status guard makes it a
// compare-and-swap: of two workers racing to reprocess the same failed
// record exactly one wins, the other observes ErrInvalidOperation.
func (r *billingEventRepository) Reopen(ctx context.Context, id string) error {
	query := `
		UPDATE billing_events SET
			status = $2,
			error_message = NULL,
			updated_at = $3
		WHERE id = $1 AND status = $4`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query, id, types.BillingEventStatusProcessing, time.Now().UTC(), types.BillingEventStatusFailed)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to reopen billing event record").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("billing event is not in failed state").
			WithHintf("Record %s was reopened by another worker or already finalized", id).
			Mark(ierr.ErrInvalidOperation)
	}

	return nil
}

func (r *billingEventRepository) List(ctx context.Context, limit int) ([]*billingevent.BillingEvent, error) {
	query := `SELECT * FROM billing_events ORDER BY created_at DESC LIMIT $1`

	var events []*billingevent.BillingEvent
	q := r.db.GetQuerier(ctx)
	if err := q.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing events").
			Mark(ierr.ErrDatabase)
	}

	return events, nil
}
