package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/motorsouq/billing/internal/domain/user"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/postgres"
)

type userRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUserRepository(db *postgres.DB, logger *logger.Logger) user.Repository {
	return &userRepository{db: db, logger: logger}
}

func (r *userRepository) Get(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var u user.User
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &u, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No user found for ID %s", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get user").
			Mark(ierr.ErrDatabase)
	}

	return &u, nil
}

func (r *userRepository) FindByExternalCustomerID(ctx context.Context, externalCustomerID string) (*user.User, error) {
	query := `SELECT * FROM users WHERE external_customer_id = $1`

	var u user.User
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &u, query, externalCustomerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(err).
				WithHintf("No user found for external customer ID %s", externalCustomerID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to find user by external customer ID").
			Mark(ierr.ErrDatabase)
	}

	return &u, nil
}

func (r *userRepository) SetPremiumEntitlement(ctx context.Context, userID string, premium bool) error {
	query := `UPDATE users SET premium = $2, updated_at = $3 WHERE id = $1`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query, userID, premium, time.Now().UTC())
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to set premium entitlement").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("user not found").
			WithHintf("No user found for ID %s", userID).
			Mark(ierr.ErrNotFound)
	}

	return nil
}
