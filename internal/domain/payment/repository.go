package payment

import "context"

// Repository is the persistence contract for payment records.
// Payments are append-only; there is no update or delete.
type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*Payment, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Payment, error)
}
