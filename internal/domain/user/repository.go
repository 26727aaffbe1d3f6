package user

import "context"

// Repository is the account-subsystem boundary consumed by the webhook
// pipeline. FindByExternalCustomerID returns an ErrNotFound-marked error
// when no user carries the customer ID; any other error is transient and
// retried by callers before they decide the user is genuinely missing.
type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	FindByExternalCustomerID(ctx context.Context, externalCustomerID string) (*User, error)
	SetPremiumEntitlement(ctx context.Context, userID string, premium bool) error
}
