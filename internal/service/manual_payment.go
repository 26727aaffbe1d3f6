package service

import (
	"context"
	"strings"
	"time"

	"github.com/motorsouq/billing/internal/domain/manualpayment"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

// ManualPaymentService owns the human-mediated payment path, e.g. a bank
// transfer for a listing promotion. Requests carry their own reviewed
// lifecycle outside the event ledger; completion drives the same listing
// side effect as an automated checkout.
type ManualPaymentService struct {
	ServiceParams
	executor *SideEffectExecutor
}

func NewManualPaymentService(params ServiceParams, executor *SideEffectExecutor) *ManualPaymentService {
	return &ManualPaymentService{ServiceParams: params, executor: executor}
}

// CreateRequest opens a pending request for review
func (s *ManualPaymentService) CreateRequest(ctx context.Context, userID, listingKey string, amount int64, currency string) (*manualpayment.Request, error) {
	now := time.Now().UTC()
	request := &manualpayment.Request{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_MANUAL_PAYMENT),
		UserID:     userID,
		ListingKey: listingKey,
		Amount:     amount,
		Currency:   strings.ToLower(currency),
		Status:     types.ManualPaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	if err := s.ManualPaymentRepo.Create(ctx, request); err != nil {
		return nil, err
	}

	s.Logger.Infow("manual payment request created",
		"request_id", request.ID,
		"user_id", userID,
		"listing_key", listingKey,
	)
	return request, nil
}

// Approve moves a pending request to approved
func (s *ManualPaymentService) Approve(ctx context.Context, id string, reviewerNote string) (*manualpayment.Request, error) {
	return s.review(ctx, id, types.ManualPaymentStatusApproved, reviewerNote)
}

// Reject closes the request; allowed from pending and from processing when
// the transfer turns out to be unverifiable
func (s *ManualPaymentService) Reject(ctx context.Context, id string, reviewerNote string) (*manualpayment.Request, error) {
	return s.review(ctx, id, types.ManualPaymentStatusRejected, reviewerNote)
}

func (s *ManualPaymentService) review(ctx context.Context, id string, next types.ManualPaymentStatus, reviewerNote string) (*manualpayment.Request, error) {
	request, err := s.ManualPaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(request, next); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request.ReviewedAt = &now
	if reviewerNote != "" {
		request.ReviewerNote = &reviewerNote
	}
	request.UpdatedAt = now

	if err := s.ManualPaymentRepo.Update(ctx, request); err != nil {
		return nil, err
	}

	s.Logger.Infow("manual payment request reviewed",
		"request_id", request.ID,
		"status", request.Status,
	)
	return request, nil
}

// StartProcessing marks an approved request as being reconciled
func (s *ManualPaymentService) StartProcessing(ctx context.Context, id string) (*manualpayment.Request, error) {
	request, err := s.ManualPaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(request, types.ManualPaymentStatusProcessing); err != nil {
		return nil, err
	}
	request.UpdatedAt = time.Now().UTC()

	if err := s.ManualPaymentRepo.Update(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// Complete finishes a processing request and marks the listing paid through
// the side-effect executor. The listing mutation runs before the status
// flip so a failed side effect leaves the request retryable.
func (s *ManualPaymentService) Complete(ctx context.Context, id string) (*manualpayment.Request, error) {
	request, err := s.ManualPaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(types.ManualPaymentStatusCompleted) {
		return nil, s.transitionError(request, types.ManualPaymentStatusCompleted)
	}

	op := SideEffectOperation{
		Name: "mark_listing_paid",
		Run: func(ctx context.Context) error {
			return s.ListingRepo.MarkPaid(ctx, request.ListingKey)
		},
	}
	maxRetries := DefaultMaxSideEffectRetries
	if s.Config != nil && s.Config.Billing.MaxSideEffectRetries > 0 {
		maxRetries = s.Config.Billing.MaxSideEffectRetries
	}
	if err := s.executor.Execute(ctx, op, maxRetries); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request.Status = types.ManualPaymentStatusCompleted
	request.CompletedAt = &now
	request.UpdatedAt = now

	if err := s.ManualPaymentRepo.Update(ctx, request); err != nil {
		return nil, err
	}

	s.Logger.Infow("manual payment request completed",
		"request_id", request.ID,
		"listing_key", request.ListingKey,
	)
	return request, nil
}

// ListPending returns requests awaiting review
func (s *ManualPaymentService) ListPending(ctx context.Context) ([]*manualpayment.Request, error) {
	return s.ManualPaymentRepo.ListByStatus(ctx, types.ManualPaymentStatusPending)
}

func (s *ManualPaymentService) transition(request *manualpayment.Request, next types.ManualPaymentStatus) error {
	if !request.Status.CanTransitionTo(next) {
		return s.transitionError(request, next)
	}
	request.Status = next
	return nil
}

func (s *ManualPaymentService) transitionError(request *manualpayment.Request, next types.ManualPaymentStatus) error {
	return ierr.NewError("invalid manual payment transition").
		WithHintf("Cannot move request from %s to %s", request.Status, next).
		WithReportableDetails(map[string]any{
			"request_id": request.ID,
			"from":       request.Status,
			"to":         next,
		}).
		Mark(ierr.ErrInvalidOperation)
}
