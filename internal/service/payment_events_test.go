package service

import (
	"testing"
	"time"

	"github.com/motorsouq/billing/internal/domain/subscription"
	"github.com/motorsouq/billing/internal/domain/user"
	"github.com/motorsouq/billing/internal/email"
	"github.com/motorsouq/billing/internal/testutil"
	"github.com/motorsouq/billing/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type PaymentEventServiceSuite struct {
	testutil.BaseServiceTestSuite
	service *PaymentEventService
}

func TestPaymentEventService(t *testing.T) {
	suite.Run(t, new(PaymentEventServiceSuite))
}

func (s *PaymentEventServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	executor := NewSideEffectExecutor(s.GetLogger())
	executor.sleep = func(time.Duration) {}

	s.service = NewPaymentEventService(ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		SubscriptionRepo: s.GetStores().SubscriptionRepo,
		PaymentRepo:      s.GetStores().PaymentRepo,
		UserRepo:         s.GetStores().UserRepo,
		ListingRepo:      s.GetStores().ListingRepo,
		Cache:            s.GetCache(),
		Notifier:         s.GetNotifier(),
	}, executor)
}

func (s *PaymentEventServiceSuite) seedSubscription(externalID string, userID *string) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		ExternalID:         externalID,
		ExternalCustomerID: "cus_1",
		UserID:             userID,
		Status:             types.SubscriptionStatusActive,
		PlanID:             "price_monthly",
		CreatedAt:          s.GetNow(),
		UpdatedAt:          s.GetNow(),
	}
	s.NoError(s.GetStores().SubscriptionRepo.Create(s.GetContext(), sub))
	return sub
}

func (s *PaymentEventServiceSuite) TestCheckoutCompletedMarksListingPaid() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	event := newBillingEvent("evt_1", types.EventCheckoutSessionCompleted,
		`{"id":"cs_1","payment_intent":"pi_1","amount_total":5000,"currency":"aed","metadata":{"listing_key":"listing-1"}}`)

	s.NoError(s.service.HandleCheckoutSessionCompleted(s.GetContext(), event))
	s.True(s.GetStores().ListingRepo.IsPaid("listing-1"))

	payments := s.GetStores().PaymentRepo.All()
	s.Len(payments, 1)
	s.Equal(types.PaymentStatusSucceeded, payments[0].Status)
	s.Equal(int64(5000), payments[0].Amount)
	s.NotNil(payments[0].PaymentIntentID)
	s.Equal("pi_1", *payments[0].PaymentIntentID)
	s.NotNil(payments[0].PaidAt)
}

func (s *PaymentEventServiceSuite) TestCheckoutWithHighlightTogglesPromotion() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	event := newBillingEvent("evt_1", types.EventCheckoutSessionCompleted,
		`{"id":"cs_1","payment_intent":"pi_1","amount_total":9000,"currency":"aed","metadata":{"listing_key":"listing-1","highlight":"true"}}`)

	s.NoError(s.service.HandleCheckoutSessionCompleted(s.GetContext(), event))
	s.True(s.GetStores().ListingRepo.IsPaid("listing-1"))
	s.True(s.GetStores().ListingRepo.IsHighlighted("listing-1"))
}

func (s *PaymentEventServiceSuite) TestHighlightZeroRowsExhaustsRetries() {
	// ToggleHighlight reports zero affected rows for an unknown key; that is
	// retried like a transient failure and hard-fails after exhaustion
	err := s.service.highlightListing(s.GetContext(), "evt_1", "listing-ghost")
	s.Error(err)
	s.Contains(err.Error(), "toggle_listing_highlight")
	s.Contains(err.Error(), "3 attempts")
}

func (s *PaymentEventServiceSuite) TestCheckoutFallsBackToClientReferenceID() {
	s.GetStores().ListingRepo.AddListing("listing-2")

	event := newBillingEvent("evt_1", types.EventCheckoutSessionCompleted,
		`{"id":"cs_1","payment_intent":"pi_1","amount_total":5000,"currency":"aed","client_reference_id":"listing-2"}`)

	s.NoError(s.service.HandleCheckoutSessionCompleted(s.GetContext(), event))
	s.True(s.GetStores().ListingRepo.IsPaid("listing-2"))
}

func (s *PaymentEventServiceSuite) TestCheckoutSideEffectExhaustionSurfaces() {
	s.GetStores().ListingRepo.AddListing("listing-1")
	s.GetStores().ListingRepo.FailMarkPaidRemaining = 5

	event := newBillingEvent("evt_1", types.EventCheckoutSessionCompleted,
		`{"id":"cs_1","payment_intent":"pi_1","amount_total":5000,"currency":"aed","metadata":{"listing_key":"listing-1"}}`)

	err := s.service.HandleCheckoutSessionCompleted(s.GetContext(), event)
	s.Error(err)
	s.Contains(err.Error(), "mark_listing_paid")
	s.Equal(3, s.GetStores().ListingRepo.MarkPaidAttempts)
	s.Empty(s.GetStores().PaymentRepo.All())
}

func (s *PaymentEventServiceSuite) TestCheckoutWithoutPaymentReferenceSkipsRecord() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	event := newBillingEvent("evt_1", types.EventCheckoutSessionCompleted,
		`{"id":"cs_1","amount_total":5000,"currency":"aed","metadata":{"listing_key":"listing-1"}}`)

	s.NoError(s.service.HandleCheckoutSessionCompleted(s.GetContext(), event))
	s.True(s.GetStores().ListingRepo.IsPaid("listing-1"))
	s.Empty(s.GetStores().PaymentRepo.All())
}

func (s *PaymentEventServiceSuite) TestPaymentIntentFailedRecordsFailureMessage() {
	event := newBillingEvent("evt_1", types.EventPaymentIntentPaymentFailed,
		`{"id":"pi_1","amount":5000,"currency":"aed","last_payment_error":{"message":"card declined"}}`)

	s.NoError(s.service.HandlePaymentIntentFailed(s.GetContext(), event))

	record, err := s.GetStores().PaymentRepo.GetByPaymentIntentID(s.GetContext(), "pi_1")
	s.NoError(err)
	s.Equal(types.PaymentStatusFailed, record.Status)
	s.NotNil(record.FailedAt)
	s.Nil(record.PaidAt)
	s.Equal("card declined", record.Metadata["failure_message"])
}

func (s *PaymentEventServiceSuite) TestChargeSucceededLinksIntent() {
	event := newBillingEvent("evt_1", types.EventChargeSucceeded,
		`{"id":"ch_1","amount":5000,"currency":"aed","payment_intent":{"id":"pi_1"}}`)

	s.NoError(s.service.HandleChargeSucceeded(s.GetContext(), event))

	record, err := s.GetStores().PaymentRepo.GetByPaymentIntentID(s.GetContext(), "pi_1")
	s.NoError(err)
	s.Equal(types.PaymentStatusSucceeded, record.Status)
}

func (s *PaymentEventServiceSuite) TestChargeWithoutIntentSkipped() {
	event := newBillingEvent("evt_1", types.EventChargeSucceeded,
		`{"id":"ch_1","amount":5000,"currency":"aed"}`)

	s.NoError(s.service.HandleChargeSucceeded(s.GetContext(), event))
	s.Empty(s.GetStores().PaymentRepo.All())
}

func (s *PaymentEventServiceSuite) TestInvoicePaymentSucceededRefreshesPeriod() {
	sub := s.seedSubscription("sub_1", lo.ToPtr("u1"))

	event := newBillingEvent("evt_1", types.EventInvoicePaymentSucceeded,
		`{"id":"in_1","subscription":"sub_1","amount_paid":5000,"currency":"aed","period_start":1700000000,"period_end":1702592000}`)

	s.NoError(s.service.HandleInvoicePaymentSucceeded(s.GetContext(), event))

	payments, err := s.GetStores().PaymentRepo.ListBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(payments, 1)
	s.Equal(int64(5000), payments[0].Amount)

	stored, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.NotNil(stored.CurrentPeriodStart)
	s.NotNil(stored.CurrentPeriodEnd)
	s.Equal(time.Unix(1700000000, 0).UTC(), *stored.CurrentPeriodStart)
	s.Equal(time.Unix(1702592000, 0).UTC(), *stored.CurrentPeriodEnd)
}

func (s *PaymentEventServiceSuite) TestInvoiceForUnknownSubscriptionSkipsRecord() {
	event := newBillingEvent("evt_1", types.EventInvoicePaymentSucceeded,
		`{"id":"in_1","subscription":"sub_ghost","amount_paid":5000,"currency":"aed"}`)

	s.NoError(s.service.HandleInvoicePaymentSucceeded(s.GetContext(), event))
	s.Empty(s.GetStores().PaymentRepo.All())
}

func (s *PaymentEventServiceSuite) TestInvoicePaymentFailedNotifiesOwner() {
	owner := &user.User{
		ID:                 "u1",
		ExternalCustomerID: lo.ToPtr("cus_1"),
		Email:              "u1@example.com",
		Name:               "Test User",
		CreatedAt:          s.GetNow(),
		UpdatedAt:          s.GetNow(),
	}
	s.NoError(s.GetStores().UserRepo.Add(s.GetContext(), owner))
	sub := s.seedSubscription("sub_1", lo.ToPtr(owner.ID))

	event := newBillingEvent("evt_1", types.EventInvoicePaymentFailed,
		`{"id":"in_1","subscription":"sub_1","amount_due":5000,"currency":"aed"}`)

	s.NoError(s.service.HandleInvoicePaymentFailed(s.GetContext(), event))
	s.WaitForNotifications()

	payments, err := s.GetStores().PaymentRepo.ListBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(payments, 1)
	s.Equal(types.PaymentStatusFailed, payments[0].Status)
	s.Equal(int64(5000), payments[0].Amount)
	s.Equal(1, s.GetSender().CountByTemplate(email.TemplatePaymentFailed))
}

func (s *PaymentEventServiceSuite) TestInvoiceFinalizedWritesNothing() {
	s.seedSubscription("sub_1", lo.ToPtr("u1"))
	writesBefore := s.GetStores().SubscriptionRepo.WriteCount

	event := newBillingEvent("evt_1", types.EventInvoiceFinalized,
		`{"id":"in_1","subscription":"sub_1","amount_due":5000,"currency":"aed"}`)

	s.NoError(s.service.HandleInvoiceAcknowledged(s.GetContext(), event))
	s.Empty(s.GetStores().PaymentRepo.All())
	s.Equal(writesBefore, s.GetStores().SubscriptionRepo.WriteCount)
}
