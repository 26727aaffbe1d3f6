package service

import (
	"testing"
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/testutil"
	"github.com/motorsouq/billing/internal/types"
	"github.com/stretchr/testify/suite"
)

type ManualPaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service *ManualPaymentService
}

func TestManualPaymentService(t *testing.T) {
	suite.Run(t, new(ManualPaymentServiceSuite))
}

func (s *ManualPaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	executor := NewSideEffectExecutor(s.GetLogger())
	executor.sleep = func(time.Duration) {}

	s.service = NewManualPaymentService(ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		ManualPaymentRepo: s.GetStores().ManualPaymentRepo,
		ListingRepo:       s.GetStores().ListingRepo,
	}, executor)
}

func (s *ManualPaymentServiceSuite) TestFullLifecycleMarksListingPaid() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	request, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "AED")
	s.NoError(err)
	s.Equal(types.ManualPaymentStatusPending, request.Status)
	s.Equal("aed", request.Currency)

	request, err = s.service.Approve(s.GetContext(), request.ID, "bank transfer verified")
	s.NoError(err)
	s.Equal(types.ManualPaymentStatusApproved, request.Status)
	s.NotNil(request.ReviewedAt)
	s.NotNil(request.ReviewerNote)

	request, err = s.service.StartProcessing(s.GetContext(), request.ID)
	s.NoError(err)
	s.Equal(types.ManualPaymentStatusProcessing, request.Status)

	request, err = s.service.Complete(s.GetContext(), request.ID)
	s.NoError(err)
	s.Equal(types.ManualPaymentStatusCompleted, request.Status)
	s.NotNil(request.CompletedAt)
	s.True(s.GetStores().ListingRepo.IsPaid("listing-1"))
}

func (s *ManualPaymentServiceSuite) TestCompleteFromPendingRejected() {
	request, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "aed")
	s.NoError(err)

	_, err = s.service.Complete(s.GetContext(), request.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *ManualPaymentServiceSuite) TestApproveCompletedRejected() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	request, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "aed")
	s.NoError(err)
	_, err = s.service.Approve(s.GetContext(), request.ID, "")
	s.NoError(err)
	_, err = s.service.StartProcessing(s.GetContext(), request.ID)
	s.NoError(err)
	_, err = s.service.Complete(s.GetContext(), request.ID)
	s.NoError(err)

	_, err = s.service.Approve(s.GetContext(), request.ID, "late approval")
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *ManualPaymentServiceSuite) TestRejectFromProcessingAllowed() {
	request, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "aed")
	s.NoError(err)
	_, err = s.service.Approve(s.GetContext(), request.ID, "")
	s.NoError(err)
	_, err = s.service.StartProcessing(s.GetContext(), request.ID)
	s.NoError(err)

	request, err = s.service.Reject(s.GetContext(), request.ID, "transfer never arrived")
	s.NoError(err)
	s.Equal(types.ManualPaymentStatusRejected, request.Status)
	s.False(s.GetStores().ListingRepo.IsPaid("listing-1"))
}

func (s *ManualPaymentServiceSuite) TestCompleteRetriesListingSideEffect() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	request, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "aed")
	s.NoError(err)
	_, err = s.service.Approve(s.GetContext(), request.ID, "")
	s.NoError(err)
	_, err = s.service.StartProcessing(s.GetContext(), request.ID)
	s.NoError(err)

	s.GetStores().ListingRepo.FailMarkPaidRemaining = 2

	request, err = s.service.Complete(s.GetContext(), request.ID)
	s.NoError(err)
	s.Equal(types.ManualPaymentStatusCompleted, request.Status)
	s.Equal(3, s.GetStores().ListingRepo.MarkPaidAttempts)
	s.True(s.GetStores().ListingRepo.IsPaid("listing-1"))
}

func (s *ManualPaymentServiceSuite) TestCompleteExhaustionLeavesRequestRetryable() {
	s.GetStores().ListingRepo.AddListing("listing-1")

	request, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "aed")
	s.NoError(err)
	_, err = s.service.Approve(s.GetContext(), request.ID, "")
	s.NoError(err)
	_, err = s.service.StartProcessing(s.GetContext(), request.ID)
	s.NoError(err)

	s.GetStores().ListingRepo.FailMarkPaidRemaining = 5

	_, err = s.service.Complete(s.GetContext(), request.ID)
	s.Error(err)
	s.Contains(err.Error(), "mark_listing_paid")

	stored, getErr := s.GetStores().ManualPaymentRepo.Get(s.GetContext(), request.ID)
	s.NoError(getErr)
	s.Equal(types.ManualPaymentStatusProcessing, stored.Status)
	s.False(s.GetStores().ListingRepo.IsPaid("listing-1"))
}

func (s *ManualPaymentServiceSuite) TestListPendingReturnsOnlyPending() {
	first, err := s.service.CreateRequest(s.GetContext(), "u1", "listing-1", 5000, "aed")
	s.NoError(err)
	_, err = s.service.CreateRequest(s.GetContext(), "u2", "listing-2", 3000, "aed")
	s.NoError(err)

	_, err = s.service.Approve(s.GetContext(), first.ID, "")
	s.NoError(err)

	pending, err := s.service.ListPending(s.GetContext())
	s.NoError(err)
	s.Len(pending, 1)
	s.Equal("listing-2", pending[0].ListingKey)
}
