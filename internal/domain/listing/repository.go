package listing

import "context"

// Repository is the listing-subsystem boundary consumed by side effects.
// Mutations here are safe to repeat: marking an already-paid listing paid
// is a no-op, so the side-effect executor may retry freely.
type Repository interface {
	// MarkPaid flags the listing identified by the lookup key as paid
	MarkPaid(ctx context.Context, lookupKey string) error
	// ToggleHighlight flips the highlight flag and returns the number of
	// affected rows. Zero means not found, which callers treat as
	// retryable up to the retry cap and a hard error after it.
	ToggleHighlight(ctx context.Context, lookupKey string, highlighted bool) (int, error)
}
