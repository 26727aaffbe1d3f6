package service

import (
	"context"

	"github.com/motorsouq/billing/internal/cache"
	"github.com/motorsouq/billing/internal/config"
	"github.com/motorsouq/billing/internal/domain/billingevent"
	"github.com/motorsouq/billing/internal/domain/listing"
	"github.com/motorsouq/billing/internal/domain/manualpayment"
	"github.com/motorsouq/billing/internal/domain/payment"
	"github.com/motorsouq/billing/internal/domain/subscription"
	"github.com/motorsouq/billing/internal/domain/user"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/notification"
	"github.com/motorsouq/billing/internal/postgres"
)

// ServiceParams carries common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     *postgres.DB

	// Repositories
	BillingEventRepo  billingevent.Repository
	SubscriptionRepo  subscription.Repository
	PaymentRepo       payment.Repository
	ManualPaymentRepo manualpayment.Repository
	UserRepo          user.Repository
	ListingRepo       listing.Repository

	Cache    cache.Cache
	Notifier *notification.Dispatcher
}

// WithTransaction runs fn inside a database transaction when a database is
// attached; repositories pick the transaction up from the context. Tests
// wire repositories without a database and run fn directly.
func (p ServiceParams) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.DB == nil {
		return fn(ctx)
	}
	return p.DB.WithTx(ctx, fn)
}
