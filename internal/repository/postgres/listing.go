package postgres

import (
	"context"
	"time"

	"github.com/motorsouq/billing/internal/domain/listing"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/postgres"
)

type listingRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewListingRepository(db *postgres.DB, logger *logger.Logger) listing.Repository {
	return &listingRepository{db: db, logger: logger}
}

// MarkPaid is repeat-safe: flagging an already-paid listing changes nothing
func (r *listingRepository) MarkPaid(ctx context.Context, lookupKey string) error {
	query := `UPDATE listings SET paid = TRUE, paid_at = $2, updated_at = $2 WHERE lookup_key = $1`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query, lookupKey, time.Now().UTC())
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to mark listing paid").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("listing not found").
			WithHintf("No listing found for lookup key %s", lookupKey).
			Mark(ierr.ErrNotFound)
	}

	return nil
}

func (r *listingRepository) ToggleHighlight(ctx context.Context, lookupKey string, highlighted bool) (int, error) {
	query := `UPDATE listings SET highlighted = $2, updated_at = $3 WHERE lookup_key = $1`

	q := r.db.GetQuerier(ctx)
	result, err := q.ExecContext(ctx, query, lookupKey, highlighted, time.Now().UTC())
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to toggle listing highlight").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}

	return int(rows), nil
}
