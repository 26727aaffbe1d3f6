package subscription

import (
	"context"

	"github.com/motorsouq/billing/internal/types"
)

// Repository is the persistence contract for subscription records
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	// ListByUserID returns all subscriptions owned by the user, optionally
	// filtered by status
	ListByUserID(ctx context.Context, userID string, statuses []types.SubscriptionStatus) ([]*Subscription, error)
	// CountOtherEntitling counts the user's subscriptions in an entitling
	// status (active or trialing) excluding the given external subscription
	// ID. Used on deletion to decide whether premium entitlement survives.
	CountOtherEntitling(ctx context.Context, userID string, excludeExternalID string) (int, error)
}
