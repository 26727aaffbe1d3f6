package postgres

import (
	"context"
	"database/sql"

	"github.com/motorsouq/billing/internal/domain/payment"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/postgres"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (
			id,
			subscription_id,
			payment_intent_id,
			amount,
			currency,
			status,
			paid_at,
			failed_at,
			metadata,
			created_at,
			updated_at
		) VALUES (
			:id,
			:subscription_id,
			:payment_intent_id,
			:amount,
			:currency,
			:status,
			:paid_at,
			:failed_at,
			:metadata,
			:created_at,
			:updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create payment record").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	query := `SELECT * FROM payments WHERE id = $1`

	var p payment.Payment
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &p, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No payment found for ID %s", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment").
			Mark(ierr.ErrDatabase)
	}

	return &p, nil
}

func (r *paymentRepository) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*payment.Payment, error) {
	query := `SELECT * FROM payments WHERE subscription_id = $1 ORDER BY created_at DESC`

	var payments []*payment.Payment
	q := r.db.GetQuerier(ctx)
	if err := q.SelectContext(ctx, &payments, query, subscriptionID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payments").
			Mark(ierr.ErrDatabase)
	}

	return payments, nil
}

func (r *paymentRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*payment.Payment, error) {
	query := `SELECT * FROM payments WHERE payment_intent_id = $1 ORDER BY created_at DESC LIMIT 1`

	var p payment.Payment
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &p, query, paymentIntentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No payment found for payment intent %s", paymentIntentID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment").
			Mark(ierr.ErrDatabase)
	}

	return &p, nil
}
