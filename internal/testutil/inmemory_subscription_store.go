package testutil

import (
	"context"
	"sync"

	"github.com/motorsouq/billing/internal/domain/subscription"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
	"github.com/samber/lo"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
	mu sync.RWMutex

	// WriteCount counts Create and Update calls for zero-extra-writes
	// assertions
	WriteCount int
}

// NewInMemorySubscriptionStore creates a new in-memory subscription repository
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

// Clear resets all stored data
func (m *InMemorySubscriptionStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InMemoryStore.Clear()
	m.WriteCount = 0
}

func (m *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}

	m.mu.Lock()
	m.WriteCount++
	m.mu.Unlock()

	return m.InMemoryStore.Create(ctx, sub.ID, sub)
}

func (m *InMemorySubscriptionStore) GetByExternalID(ctx context.Context, externalID string) (*subscription.Subscription, error) {
	subs, err := m.InMemoryStore.List(ctx, func(ctx context.Context, item *subscription.Subscription) bool {
		return item.ExternalID == externalID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHint("No subscription with this external ID").
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

func (m *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}

	m.mu.Lock()
	m.WriteCount++
	m.mu.Unlock()

	return m.InMemoryStore.Update(ctx, sub.ID, sub)
}

func (m *InMemorySubscriptionStore) ListByUserID(ctx context.Context, userID string, statuses []types.SubscriptionStatus) ([]*subscription.Subscription, error) {
	return m.InMemoryStore.List(ctx, func(ctx context.Context, item *subscription.Subscription) bool {
		if item.UserID == nil || *item.UserID != userID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		return lo.Contains(statuses, item.Status)
	}, func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

func (m *InMemorySubscriptionStore) CountOtherEntitling(ctx context.Context, userID string, excludeExternalID string) (int, error) {
	return m.InMemoryStore.Count(ctx, func(ctx context.Context, item *subscription.Subscription) bool {
		return item.UserID != nil &&
			*item.UserID == userID &&
			item.ExternalID != excludeExternalID &&
			item.Status.IsEntitling()
	})
}
