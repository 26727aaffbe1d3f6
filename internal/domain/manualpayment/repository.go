package manualpayment

import (
	"context"

	"github.com/motorsouq/billing/internal/types"
)

// Repository is the persistence contract for manual payment requests
type Repository interface {
	Create(ctx context.Context, request *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, request *Request) error
	ListByStatus(ctx context.Context, status types.ManualPaymentStatus) ([]*Request, error)
}
