package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motorsouq/billing/internal/api"
	v1 "github.com/motorsouq/billing/internal/api/v1"
	"github.com/motorsouq/billing/internal/cache"
	"github.com/motorsouq/billing/internal/config"
	"github.com/motorsouq/billing/internal/domain/billingevent"
	"github.com/motorsouq/billing/internal/domain/listing"
	"github.com/motorsouq/billing/internal/domain/manualpayment"
	"github.com/motorsouq/billing/internal/domain/payment"
	"github.com/motorsouq/billing/internal/domain/subscription"
	"github.com/motorsouq/billing/internal/domain/user"
	"github.com/motorsouq/billing/internal/email"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/notification"
	"github.com/motorsouq/billing/internal/postgres"
	"github.com/motorsouq/billing/internal/repository"
	"github.com/motorsouq/billing/internal/service"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Postgres
			postgres.NewDB,

			// Cache
			cache.NewInMemoryCache,

			// Email
			email.NewClient,
			email.NewService,
			provideNotificationDispatcher,

			// Repositories
			repository.NewBillingEventRepository,
			repository.NewSubscriptionRepository,
			repository.NewPaymentRepository,
			repository.NewManualPaymentRepository,
			repository.NewUserRepository,
			repository.NewListingRepository,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			provideServiceParams,
			service.NewSideEffectExecutor,
			service.NewIdempotencyLedger,
			service.NewSubscriptionLifecycleService,
			service.NewPaymentEventService,
			service.NewManualPaymentService,
			service.NewEventDispatcher,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideNotificationDispatcher(emailService *email.Service, log *logger.Logger) *notification.Dispatcher {
	return notification.NewDispatcher(emailService, log)
}

func provideServiceParams(
	cfg *config.Configuration,
	log *logger.Logger,
	db *postgres.DB,
	c cache.Cache,
	notifier *notification.Dispatcher,
	billingEventRepo billingevent.Repository,
	subscriptionRepo subscription.Repository,
	paymentRepo payment.Repository,
	manualPaymentRepo manualpayment.Repository,
	userRepo user.Repository,
	listingRepo listing.Repository,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:            log,
		Config:            cfg,
		DB:                db,
		BillingEventRepo:  billingEventRepo,
		SubscriptionRepo:  subscriptionRepo,
		PaymentRepo:       paymentRepo,
		ManualPaymentRepo: manualPaymentRepo,
		UserRepo:          userRepo,
		ListingRepo:       listingRepo,
		Cache:             c,
		Notifier:          notifier,
	}
}

func provideHandlers(
	cfg *config.Configuration,
	log *logger.Logger,
	dispatcher *service.EventDispatcher,
	manualPayments *service.ManualPaymentService,
) api.Handlers {
	return api.Handlers{
		Webhook:       v1.NewWebhookHandler(cfg, log, dispatcher),
		ManualPayment: v1.NewManualPaymentHandler(manualPayments, log),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *postgres.DB,
	notifier *notification.Dispatcher,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			notifier.Wait()
			db.Close()
			return nil
		},
	})
}
