package testutil

import (
	"context"
	"sync"

	"github.com/motorsouq/billing/internal/domain/payment"
	ierr "github.com/motorsouq/billing/internal/errors"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]
	mu             sync.RWMutex
	createdInOrder []*payment.Payment
}

// NewInMemoryPaymentStore creates a new in-memory payment repository
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore:  NewInMemoryStore[*payment.Payment](),
		createdInOrder: make([]*payment.Payment, 0),
	}
}

// Clear resets all stored data
func (m *InMemoryPaymentStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InMemoryStore.Clear()
	m.createdInOrder = make([]*payment.Payment, 0)
}

func (m *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	if p == nil {
		return ierr.NewError("payment cannot be nil").
			WithHint("Payment cannot be nil").
			Mark(ierr.ErrValidation)
	}

	if err := m.InMemoryStore.Create(ctx, p.ID, p); err != nil {
		return err
	}

	m.mu.Lock()
	m.createdInOrder = append(m.createdInOrder, p)
	m.mu.Unlock()
	return nil
}

func (m *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return m.InMemoryStore.Get(ctx, id)
}

func (m *InMemoryPaymentStore) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*payment.Payment, error) {
	return m.InMemoryStore.List(ctx, func(ctx context.Context, item *payment.Payment) bool {
		return item.SubscriptionID != nil && *item.SubscriptionID == subscriptionID
	}, func(i, j *payment.Payment) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

func (m *InMemoryPaymentStore) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*payment.Payment, error) {
	payments, err := m.InMemoryStore.List(ctx, func(ctx context.Context, item *payment.Payment) bool {
		return item.PaymentIntentID != nil && *item.PaymentIntentID == paymentIntentID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, ierr.NewError("payment not found").
			WithHint("No payment for this payment intent ID").
			Mark(ierr.ErrNotFound)
	}
	return payments[0], nil
}

// All returns every stored payment in insertion order
func (m *InMemoryPaymentStore) All() []*payment.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*payment.Payment, len(m.createdInOrder))
	copy(result, m.createdInOrder)
	return result
}
