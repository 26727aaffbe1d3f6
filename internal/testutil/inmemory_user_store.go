package testutil

import (
	"context"
	"sync"

	"github.com/motorsouq/billing/internal/domain/user"
	ierr "github.com/motorsouq/billing/internal/errors"
)

// InMemoryUserStore implements user.Repository. FailLookupsRemaining
// injects transient lookup failures for retry tests.
type InMemoryUserStore struct {
	*InMemoryStore[*user.User]
	mu sync.RWMutex

	// FailLookupsRemaining makes the next N FindByExternalCustomerID calls
	// fail with a database-marked error
	FailLookupsRemaining int
	// LookupAttempts counts FindByExternalCustomerID calls
	LookupAttempts int
}

// NewInMemoryUserStore creates a new in-memory user repository
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		InMemoryStore: NewInMemoryStore[*user.User](),
	}
}

// Clear resets all stored data
func (m *InMemoryUserStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InMemoryStore.Clear()
	m.FailLookupsRemaining = 0
	m.LookupAttempts = 0
}

func (m *InMemoryUserStore) Get(ctx context.Context, id string) (*user.User, error) {
	return m.InMemoryStore.Get(ctx, id)
}

func (m *InMemoryUserStore) FindByExternalCustomerID(ctx context.Context, externalCustomerID string) (*user.User, error) {
	m.mu.Lock()
	m.LookupAttempts++
	if m.FailLookupsRemaining > 0 {
		m.FailLookupsRemaining--
		m.mu.Unlock()
		return nil, ierr.NewError("connection reset").
			WithHint("Failed to look up user").
			Mark(ierr.ErrDatabase)
	}
	m.mu.Unlock()

	users, err := m.InMemoryStore.List(ctx, func(ctx context.Context, item *user.User) bool {
		return item.ExternalCustomerID != nil && *item.ExternalCustomerID == externalCustomerID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ierr.NewError("user not found").
			WithHint("No user with this external customer ID").
			Mark(ierr.ErrNotFound)
	}
	return users[0], nil
}

func (m *InMemoryUserStore) SetPremiumEntitlement(ctx context.Context, userID string, premium bool) error {
	u, err := m.InMemoryStore.Get(ctx, userID)
	if err != nil {
		return err
	}
	u.Premium = premium
	return m.InMemoryStore.Update(ctx, userID, u)
}

// Add stores a user keyed by its ID
func (m *InMemoryUserStore) Add(ctx context.Context, u *user.User) error {
	return m.InMemoryStore.Create(ctx, u.ID, u)
}
