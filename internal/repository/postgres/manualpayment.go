package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/motorsouq/billing/internal/domain/manualpayment"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/postgres"
	"github.com/motorsouq/billing/internal/types"
)

type manualPaymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewManualPaymentRepository(db *postgres.DB, logger *logger.Logger) manualpayment.Repository {
	return &manualPaymentRepository{db: db, logger: logger}
}

func (r *manualPaymentRepository) Create(ctx context.Context, request *manualpayment.Request) error {
	query := `
		INSERT INTO manual_payment_requests (
			id,
			user_id,
			listing_key,
			amount,
			currency,
			status,
			reviewer_note,
			reviewed_at,
			completed_at,
			created_at,
			updated_at
		) VALUES (
			:id,
			:user_id,
			:listing_key,
			:amount,
			:currency,
			:status,
			:reviewer_note,
			:reviewed_at,
			:completed_at,
			:created_at,
			:updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create manual payment request").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *manualPaymentRepository) Get(ctx context.Context, id string) (*manualpayment.Request, error) {
	query := `SELECT * FROM manual_payment_requests WHERE id = $1`

	var request manualpayment.Request
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &request, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No manual payment request found for ID %s", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get manual payment request").
			Mark(ierr.ErrDatabase)
	}

	return &request, nil
}

func (r *manualPaymentRepository) Update(ctx context.Context, request *manualpayment.Request) error {
	request.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE manual_payment_requests SET
			status = :status,
			reviewer_note = :reviewer_note,
			reviewed_at = :reviewed_at,
			completed_at = :completed_at,
			updated_at = :updated_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update manual payment request").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *manualPaymentRepository) ListByStatus(ctx context.Context, status types.ManualPaymentStatus) ([]*manualpayment.Request, error) {
	query := `SELECT * FROM manual_payment_requests WHERE status = $1 ORDER BY created_at ASC`

	var requests []*manualpayment.Request
	q := r.db.GetQuerier(ctx)
	if err := q.SelectContext(ctx, &requests, query, status); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list manual payment requests").
			Mark(ierr.ErrDatabase)
	}

	return requests, nil
}
