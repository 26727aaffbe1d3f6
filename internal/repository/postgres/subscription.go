package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/motorsouq/billing/internal/domain/subscription"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/postgres"
	"github.com/motorsouq/billing/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id,
			external_id,
			external_customer_id,
			user_id,
			status,
			plan_id,
			current_period_start,
			current_period_end,
			cancel_at_period_end,
			canceled_at,
			metadata,
			created_at,
			updated_at
		) VALUES (
			:id,
			:external_id,
			:external_customer_id,
			:user_id,
			:status,
			:plan_id,
			:current_period_start,
			:current_period_end,
			:cancel_at_period_end,
			:canceled_at,
			:metadata,
			:created_at,
			:updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return ierr.WithError(err).
				WithHintf("Subscription %s already exists", sub.ExternalID).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *subscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*subscription.Subscription, error) {
	query := `SELECT * FROM subscriptions WHERE external_id = $1`

	var sub subscription.Subscription
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &sub, query, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No subscription found for external ID %s", externalID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}

	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE subscriptions SET
			external_customer_id = :external_customer_id,
			user_id = :user_id,
			status = :status,
			plan_id = :plan_id,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			cancel_at_period_end = :cancel_at_period_end,
			canceled_at = :canceled_at,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE external_id = :external_id`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}

	return nil
}

func (r *subscriptionRepository) ListByUserID(ctx context.Context, userID string, statuses []types.SubscriptionStatus) ([]*subscription.Subscription, error) {
	query := `SELECT * FROM subscriptions WHERE user_id = $1`
	args := []interface{}{userID}

	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = s.String()
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(values))
	}

	var subs []*subscription.Subscription
	q := r.db.GetQuerier(ctx)
	if err := q.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}

	return subs, nil
}

func (r *subscriptionRepository) CountOtherEntitling(ctx context.Context, userID string, excludeExternalID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM subscriptions
		WHERE user_id = $1 AND status = ANY($2) AND external_id != $3`

	statuses := []string{
		types.SubscriptionStatusActive.String(),
		types.SubscriptionStatusTrialing.String(),
	}

	var count int
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &count, query, userID, pq.Array(statuses), excludeExternalID)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count entitling subscriptions").
			Mark(ierr.ErrDatabase)
	}

	return count, nil
}
