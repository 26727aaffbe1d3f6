package testutil

import (
	"context"
	"time"

	"github.com/motorsouq/billing/internal/cache"
	"github.com/motorsouq/billing/internal/config"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/notification"
	"github.com/motorsouq/billing/internal/types"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository implementations for testing
type Stores struct {
	BillingEventRepo  *InMemoryBillingEventStore
	SubscriptionRepo  *InMemorySubscriptionStore
	PaymentRepo       *InMemoryPaymentStore
	ManualPaymentRepo *InMemoryManualPaymentStore
	UserRepo          *InMemoryUserStore
	ListingRepo       *InMemoryListingStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	stores   Stores
	sender   *RecordingSender
	notifier *notification.Dispatcher
	cache    cache.Cache
	logger   *logger.Logger
	config   *config.Configuration
	now      time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = types.SetRequestID(context.Background(), types.GenerateUUID())
	s.stores = Stores{
		BillingEventRepo:  NewInMemoryBillingEventStore(),
		SubscriptionRepo:  NewInMemorySubscriptionStore(),
		PaymentRepo:       NewInMemoryPaymentStore(),
		ManualPaymentRepo: NewInMemoryManualPaymentStore(),
		UserRepo:          NewInMemoryUserStore(),
		ListingRepo:       NewInMemoryListingStore(),
	}
	s.sender = NewRecordingSender()
	s.notifier = notification.NewDispatcher(s.sender, s.logger)
	s.cache = cache.NewInMemoryCache()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.notifier.Wait()
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetSender() *RecordingSender {
	return s.sender
}

func (s *BaseServiceTestSuite) GetNotifier() *notification.Dispatcher {
	return s.notifier
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

// WaitForNotifications blocks until detached notification sends finish
func (s *BaseServiceTestSuite) WaitForNotifications() {
	s.notifier.Wait()
}
