package service

import (
	"fmt"
	"testing"

	"github.com/motorsouq/billing/internal/domain/subscription"
	"github.com/motorsouq/billing/internal/domain/user"
	"github.com/motorsouq/billing/internal/email"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/testutil"
	"github.com/motorsouq/billing/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type SubscriptionLifecycleSuite struct {
	testutil.BaseServiceTestSuite
	service *SubscriptionLifecycleService
}

func TestSubscriptionLifecycle(t *testing.T) {
	suite.Run(t, new(SubscriptionLifecycleSuite))
}

func (s *SubscriptionLifecycleSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewSubscriptionLifecycleService(ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		BillingEventRepo: s.GetStores().BillingEventRepo,
		SubscriptionRepo: s.GetStores().SubscriptionRepo,
		PaymentRepo:      s.GetStores().PaymentRepo,
		UserRepo:         s.GetStores().UserRepo,
		ListingRepo:      s.GetStores().ListingRepo,
		Cache:            s.GetCache(),
		Notifier:         s.GetNotifier(),
	})
}

func (s *SubscriptionLifecycleSuite) seedUser(id, customerID string, premium bool) *user.User {
	u := &user.User{
		ID:                 id,
		ExternalCustomerID: lo.ToPtr(customerID),
		Email:              id + "@example.com",
		Name:               "Test User",
		Premium:            premium,
		CreatedAt:          s.GetNow(),
		UpdatedAt:          s.GetNow(),
	}
	s.NoError(s.GetStores().UserRepo.Add(s.GetContext(), u))
	return u
}

func (s *SubscriptionLifecycleSuite) TestWelcomeOnActiveCreation() {
	s.seedUser("u1", "cus_1", false)

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active","plan":{"id":"price_monthly"}}`)

	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))
	s.WaitForNotifications()

	s.Equal(1, s.GetSender().CountByTemplate(email.TemplateSubscriptionWelcome))
}

func (s *SubscriptionLifecycleSuite) TestDeferredWelcomeFiresExactlyOnce() {
	s.seedUser("u1", "cus_1", false)

	created := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"incomplete"}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), created))
	s.WaitForNotifications()
	s.Equal(0, s.GetSender().CountByTemplate(email.TemplateSubscriptionWelcome))

	activated := newBillingEvent("evt_2", types.EventSubscriptionUpdated,
		`{"id":"sub_1","customer":"cus_1","status":"active","current_period_start":1700000000,"current_period_end":1702592000}`)
	s.NoError(s.service.HandleSubscriptionUpdated(s.GetContext(), activated))
	s.WaitForNotifications()
	s.Equal(1, s.GetSender().CountByTemplate(email.TemplateSubscriptionWelcome))

	// A later update that keeps the subscription active does not re-send
	renewed := newBillingEvent("evt_3", types.EventSubscriptionUpdated,
		`{"id":"sub_1","customer":"cus_1","status":"active","current_period_start":1702592000,"current_period_end":1705184000}`)
	s.NoError(s.service.HandleSubscriptionUpdated(s.GetContext(), renewed))
	s.WaitForNotifications()
	s.Equal(1, s.GetSender().CountByTemplate(email.TemplateSubscriptionWelcome))
}

func (s *SubscriptionLifecycleSuite) TestMalformedPeriodTimestampsOmitted() {
	s.seedUser("u1", "cus_1", false)

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active","current_period_start":"garbage","current_period_end":-5}`)

	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.Nil(sub.CurrentPeriodStart)
	s.Nil(sub.CurrentPeriodEnd)
}

func (s *SubscriptionLifecycleSuite) TestIncompleteStatusOmitsPeriods() {
	s.seedUser("u1", "cus_1", false)

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"incomplete","current_period_start":1700000000,"current_period_end":1702592000}`)

	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.Nil(sub.CurrentPeriodStart)
	s.Nil(sub.CurrentPeriodEnd)
}

func (s *SubscriptionLifecycleSuite) TestUpdatedUpsertsUnknownSubscription() {
	s.seedUser("u1", "cus_1", false)

	event := newBillingEvent("evt_1", types.EventSubscriptionUpdated,
		`{"id":"sub_never_seen","customer":"cus_1","status":"active"}`)

	s.NoError(s.service.HandleSubscriptionUpdated(s.GetContext(), event))

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_never_seen")
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.NotNil(sub.UserID)
	s.Equal("u1", *sub.UserID)
}

func (s *SubscriptionLifecycleSuite) TestCancelAtPeriodEndTracksBothWays() {
	s.seedUser("u1", "cus_1", false)

	created := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), created))

	scheduled := newBillingEvent("evt_2", types.EventSubscriptionUpdated,
		`{"id":"sub_1","customer":"cus_1","status":"active","cancel_at_period_end":true,"canceled_at":1700000000}`)
	s.NoError(s.service.HandleSubscriptionUpdated(s.GetContext(), scheduled))

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.True(sub.CancelAtPeriodEnd)
	s.NotNil(sub.CanceledAt)

	reactivated := newBillingEvent("evt_3", types.EventSubscriptionUpdated,
		`{"id":"sub_1","customer":"cus_1","status":"active","cancel_at_period_end":false}`)
	s.NoError(s.service.HandleSubscriptionUpdated(s.GetContext(), reactivated))

	sub, err = s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.False(sub.CancelAtPeriodEnd)
	s.Nil(sub.CanceledAt)
}

func (s *SubscriptionLifecycleSuite) TestCompanyScopeSkipsUserResolution() {
	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_co_1","customer":"cus_co","status":"active","metadata":{"account_scope":"company"}}`)

	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))
	s.WaitForNotifications()

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_co_1")
	s.NoError(err)
	s.Nil(sub.UserID)
	s.True(sub.IsCompanyScoped())
	s.Equal(0, s.GetSender().CountByTemplate(email.TemplateSubscriptionWelcome))
}

func (s *SubscriptionLifecycleSuite) TestMissingOwningUserFailsLoudly() {
	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_orphan","customer":"cus_missing","status":"active"}`)

	err := s.service.HandleSubscriptionCreated(s.GetContext(), event)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))

	_, getErr := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_orphan")
	s.True(ierr.IsNotFound(getErr))
}

func (s *SubscriptionLifecycleSuite) TestTransientUserLookupRetried() {
	s.seedUser("u1", "cus_1", false)
	s.GetStores().UserRepo.FailLookupsRemaining = 2

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)

	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))
	s.Equal(3, s.GetStores().UserRepo.LookupAttempts)
}

func (s *SubscriptionLifecycleSuite) TestUserLookupExhaustionSurfaces() {
	s.seedUser("u1", "cus_1", false)
	s.GetStores().UserRepo.FailLookupsRemaining = 5

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)

	err := s.service.HandleSubscriptionCreated(s.GetContext(), event)
	s.Error(err)
	s.True(ierr.IsDatabase(err))
	s.Equal(3, s.GetStores().UserRepo.LookupAttempts)
}

func (s *SubscriptionLifecycleSuite) TestActiveCreationGrantsEntitlement() {
	u := s.seedUser("u1", "cus_1", false)

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))

	stored, err := s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.True(stored.Premium)
}

func (s *SubscriptionLifecycleSuite) TestTrialingCreationGrantsEntitlementWithoutWelcome() {
	u := s.seedUser("u1", "cus_1", false)

	event := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"trialing"}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))
	s.WaitForNotifications()

	stored, err := s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.True(stored.Premium)
	s.Equal(0, s.GetSender().CountByTemplate(email.TemplateSubscriptionWelcome))
}

func (s *SubscriptionLifecycleSuite) TestIncompleteToActiveGrantsEntitlement() {
	u := s.seedUser("u1", "cus_1", false)

	created := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"incomplete"}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), created))

	stored, err := s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.False(stored.Premium)

	activated := newBillingEvent("evt_2", types.EventSubscriptionUpdated,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)
	s.NoError(s.service.HandleSubscriptionUpdated(s.GetContext(), activated))

	stored, err = s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.True(stored.Premium)
}

func (s *SubscriptionLifecycleSuite) TestEntitlementRetainedWithSecondActiveSubscription() {
	u := s.seedUser("u1", "cus_1", false)

	for _, raw := range []string{
		`{"id":"sub_1","customer":"cus_1","status":"active"}`,
		`{"id":"sub_2","customer":"cus_1","status":"active"}`,
	} {
		event := newBillingEvent("evt_"+raw[7:12], types.EventSubscriptionCreated, raw)
		s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))
	}

	deleted := newBillingEvent("evt_del_1", types.EventSubscriptionDeleted,
		`{"id":"sub_1","status":"canceled"}`)
	s.NoError(s.service.HandleSubscriptionDeleted(s.GetContext(), deleted))

	updated, err := s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.True(updated.Premium)

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCanceled, sub.Status)
	s.Equal("user_requested", sub.Metadata[types.MetadataKeyCancellationReason])
}

func (s *SubscriptionLifecycleSuite) TestEntitlementRetainedWithTrialingSubscription() {
	u := s.seedUser("u1", "cus_1", false)

	for _, raw := range []string{
		`{"id":"sub_1","customer":"cus_1","status":"active"}`,
		`{"id":"sub_2","customer":"cus_1","status":"trialing"}`,
	} {
		event := newBillingEvent("evt_"+raw[7:12], types.EventSubscriptionCreated, raw)
		s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), event))
	}

	// The remaining trialing subscription keeps the user entitled
	deleted := newBillingEvent("evt_del_1", types.EventSubscriptionDeleted,
		`{"id":"sub_1","status":"canceled"}`)
	s.NoError(s.service.HandleSubscriptionDeleted(s.GetContext(), deleted))

	updated, err := s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.True(updated.Premium)
}

func (s *SubscriptionLifecycleSuite) TestDeletedUnknownSubscriptionAlreadyReconciled() {
	event := newBillingEvent("evt_1", types.EventSubscriptionDeleted,
		`{"id":"sub_ghost","status":"canceled"}`)
	s.NoError(s.service.HandleSubscriptionDeleted(s.GetContext(), event))
}

func (s *SubscriptionLifecycleSuite) TestCancellationReasonPriority() {
	u := s.seedUser("u1", "cus_1", true)

	cases := []struct {
		name     string
		raw      string
		expected types.CancellationReason
	}{
		{
			name:     "explicit metadata wins",
			raw:      `{"id":"%s","status":"canceled","cancel_at_period_end":true,"canceled_at":1700000000,"metadata":{"cancellation_reason":"unpaid"}}`,
			expected: types.CancellationReasonUnpaid,
		},
		{
			name:     "unpaid status beats end of period",
			raw:      `{"id":"%s","status":"unpaid","cancel_at_period_end":true,"canceled_at":1700000000}`,
			expected: types.CancellationReasonUnpaid,
		},
		{
			name:     "scheduled cancellation",
			raw:      `{"id":"%s","status":"canceled","cancel_at_period_end":true,"canceled_at":1700000000}`,
			expected: types.CancellationReasonEndOfPeriod,
		},
		{
			name:     "default",
			raw:      `{"id":"%s","status":"canceled"}`,
			expected: types.CancellationReasonUserRequested,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			externalID := types.GenerateUUIDWithPrefix("sub")
			sub := &subscription.Subscription{
				ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
				ExternalID:         externalID,
				ExternalCustomerID: "cus_1",
				UserID:             lo.ToPtr(u.ID),
				Status:             types.SubscriptionStatusActive,
				PlanID:             "price_monthly",
				CreatedAt:          s.GetNow(),
				UpdatedAt:          s.GetNow(),
			}
			s.NoError(s.GetStores().SubscriptionRepo.Create(s.GetContext(), sub))

			event := newBillingEvent(types.GenerateUUIDWithPrefix("evt"), types.EventSubscriptionDeleted,
				fmt.Sprintf(tc.raw, externalID))
			s.NoError(s.service.HandleSubscriptionDeleted(s.GetContext(), event))

			stored, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), externalID)
			s.NoError(err)
			s.Equal(tc.expected.String(), stored.Metadata[types.MetadataKeyCancellationReason])
		})
	}
}

func (s *SubscriptionLifecycleSuite) TestTrialWillEndAnnotatesWithoutStatusChange() {
	u := s.seedUser("u1", "cus_1", true)

	created := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"trialing"}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), created))

	trial := newBillingEvent("evt_2", types.EventSubscriptionTrialWillEnd,
		`{"id":"sub_1","customer":"cus_1","status":"trialing","trial_end":1702592000}`)
	s.NoError(s.service.HandleTrialWillEnd(s.GetContext(), trial))
	s.WaitForNotifications()

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.Equal(types.SubscriptionStatusTrialing, sub.Status)
	s.NotEmpty(sub.Metadata[types.MetadataKeyTrialEndsAt])
	s.Equal(1, s.GetSender().CountByTemplate(email.TemplateTrialEnding))

	stored, err := s.GetStores().UserRepo.Get(s.GetContext(), u.ID)
	s.NoError(err)
	s.True(stored.Premium)
}

func (s *SubscriptionLifecycleSuite) TestPendingUpdateAppliedRefreshesPlan() {
	s.seedUser("u1", "cus_1", false)

	created := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active","plan":{"id":"price_monthly"}}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), created))

	applied := newBillingEvent("evt_2", types.EventSubscriptionPendingUpdateApplied,
		`{"id":"sub_1","customer":"cus_1","status":"active","items":{"data":[{"price":{"id":"price_yearly"}}]}}`)
	s.NoError(s.service.HandlePendingUpdateApplied(s.GetContext(), applied))

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.Equal("price_yearly", sub.PlanID)
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Equal("applied", sub.Metadata[types.MetadataKeyPendingUpdate])
}

func (s *SubscriptionLifecycleSuite) TestPendingUpdateExpiredKeepsPlan() {
	s.seedUser("u1", "cus_1", false)

	created := newBillingEvent("evt_1", types.EventSubscriptionCreated,
		`{"id":"sub_1","customer":"cus_1","status":"active","plan":{"id":"price_monthly"}}`)
	s.NoError(s.service.HandleSubscriptionCreated(s.GetContext(), created))

	expired := newBillingEvent("evt_2", types.EventSubscriptionPendingUpdateExpired,
		`{"id":"sub_1","customer":"cus_1","status":"active"}`)
	s.NoError(s.service.HandlePendingUpdateExpired(s.GetContext(), expired))

	sub, err := s.GetStores().SubscriptionRepo.GetByExternalID(s.GetContext(), "sub_1")
	s.NoError(err)
	s.Equal("price_monthly", sub.PlanID)
	s.Equal("expired", sub.Metadata[types.MetadataKeyPendingUpdate])
}
