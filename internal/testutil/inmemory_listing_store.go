package testutil

import (
	"context"
	"sync"

	ierr "github.com/motorsouq/billing/internal/errors"
)

// InMemoryListingStore implements listing.Repository. FailMarkPaidRemaining
// injects transient failures for side-effect retry tests.
type InMemoryListingStore struct {
	mu          sync.RWMutex
	known       map[string]bool
	paid        map[string]bool
	highlighted map[string]bool

	// FailMarkPaidRemaining makes the next N MarkPaid calls fail
	FailMarkPaidRemaining int
	// MarkPaidAttempts counts MarkPaid calls
	MarkPaidAttempts int
}

// NewInMemoryListingStore creates a new in-memory listing repository
func NewInMemoryListingStore() *InMemoryListingStore {
	return &InMemoryListingStore{
		known:       make(map[string]bool),
		paid:        make(map[string]bool),
		highlighted: make(map[string]bool),
	}
}

// Clear resets all stored data
func (m *InMemoryListingStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known = make(map[string]bool)
	m.paid = make(map[string]bool)
	m.highlighted = make(map[string]bool)
	m.FailMarkPaidRemaining = 0
	m.MarkPaidAttempts = 0
}

// AddListing registers a listing lookup key
func (m *InMemoryListingStore) AddListing(lookupKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[lookupKey] = true
}

func (m *InMemoryListingStore) MarkPaid(ctx context.Context, lookupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkPaidAttempts++
	if m.FailMarkPaidRemaining > 0 {
		m.FailMarkPaidRemaining--
		return ierr.NewError("connection reset").
			WithHint("Failed to mark listing paid").
			Mark(ierr.ErrDatabase)
	}

	if !m.known[lookupKey] {
		return ierr.NewError("listing not found").
			WithHint("No listing with this lookup key").
			Mark(ierr.ErrNotFound)
	}

	m.paid[lookupKey] = true
	return nil
}

func (m *InMemoryListingStore) ToggleHighlight(ctx context.Context, lookupKey string, highlighted bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.known[lookupKey] {
		return 0, nil
	}

	m.highlighted[lookupKey] = highlighted
	return 1, nil
}

// IsPaid reports whether the listing was marked paid
func (m *InMemoryListingStore) IsPaid(lookupKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paid[lookupKey]
}

// IsHighlighted reports the highlight flag
func (m *InMemoryListingStore) IsHighlighted(lookupKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highlighted[lookupKey]
}
