package repository

import (
	"github.com/motorsouq/billing/internal/domain/billingevent"
	"github.com/motorsouq/billing/internal/domain/listing"
	"github.com/motorsouq/billing/internal/domain/manualpayment"
	"github.com/motorsouq/billing/internal/domain/payment"
	"github.com/motorsouq/billing/internal/domain/subscription"
	"github.com/motorsouq/billing/internal/domain/user"
	"github.com/motorsouq/billing/internal/logger"
	pgClient "github.com/motorsouq/billing/internal/postgres"
	pgRepo "github.com/motorsouq/billing/internal/repository/postgres"
)

func NewBillingEventRepository(db *pgClient.DB, logger *logger.Logger) billingevent.Repository {
	return pgRepo.NewBillingEventRepository(db, logger)
}

func NewSubscriptionRepository(db *pgClient.DB, logger *logger.Logger) subscription.Repository {
	return pgRepo.NewSubscriptionRepository(db, logger)
}

func NewPaymentRepository(db *pgClient.DB, logger *logger.Logger) payment.Repository {
	return pgRepo.NewPaymentRepository(db, logger)
}

func NewManualPaymentRepository(db *pgClient.DB, logger *logger.Logger) manualpayment.Repository {
	return pgRepo.NewManualPaymentRepository(db, logger)
}

func NewUserRepository(db *pgClient.DB, logger *logger.Logger) user.Repository {
	return pgRepo.NewUserRepository(db, logger)
}

func NewListingRepository(db *pgClient.DB, logger *logger.Logger) listing.Repository {
	return pgRepo.NewListingRepository(db, logger)
}
