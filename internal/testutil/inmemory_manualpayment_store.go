package testutil

import (
	"context"

	"github.com/motorsouq/billing/internal/domain/manualpayment"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

// InMemoryManualPaymentStore implements manualpayment.Repository
type InMemoryManualPaymentStore struct {
	*InMemoryStore[*manualpayment.Request]
}

// NewInMemoryManualPaymentStore creates a new in-memory manual payment repository
func NewInMemoryManualPaymentStore() *InMemoryManualPaymentStore {
	return &InMemoryManualPaymentStore{
		InMemoryStore: NewInMemoryStore[*manualpayment.Request](),
	}
}

// Clear resets all stored data
func (m *InMemoryManualPaymentStore) Clear() {
	m.InMemoryStore.Clear()
}

func (m *InMemoryManualPaymentStore) Create(ctx context.Context, request *manualpayment.Request) error {
	if request == nil {
		return ierr.NewError("request cannot be nil").
			WithHint("Manual payment request cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return m.InMemoryStore.Create(ctx, request.ID, request)
}

func (m *InMemoryManualPaymentStore) Get(ctx context.Context, id string) (*manualpayment.Request, error) {
	return m.InMemoryStore.Get(ctx, id)
}

func (m *InMemoryManualPaymentStore) Update(ctx context.Context, request *manualpayment.Request) error {
	if request == nil {
		return ierr.NewError("request cannot be nil").
			WithHint("Manual payment request cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return m.InMemoryStore.Update(ctx, request.ID, request)
}

func (m *InMemoryManualPaymentStore) ListByStatus(ctx context.Context, status types.ManualPaymentStatus) ([]*manualpayment.Request, error) {
	return m.InMemoryStore.List(ctx, func(ctx context.Context, item *manualpayment.Request) bool {
		return item.Status == status
	}, func(i, j *manualpayment.Request) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}
