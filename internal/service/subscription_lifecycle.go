package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/motorsouq/billing/internal/domain/subscription"
	"github.com/motorsouq/billing/internal/domain/user"
	"github.com/motorsouq/billing/internal/email"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
	"github.com/stripe/stripe-go/v82"
)

const (
	customerUserCachePrefix = "billing:customer_user:"

	userLookupAttempts  = 3
	userLookupBaseDelay = 100 * time.Millisecond
)

// externalRef decodes provider references that arrive either as a bare ID
// string or as an expanded object carrying an id field
type externalRef struct {
	ID string
}

func (r *externalRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.ID = s
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		r.ID = obj.ID
	}
	return nil
}

// subscriptionPayload is the slice of the provider subscription object this
// service reads. Parsed defensively: unknown fields are dropped, malformed
// timestamps decode as unset.
type subscriptionPayload struct {
	ID                 string              `json:"id"`
	Customer           externalRef         `json:"customer"`
	Status             string              `json:"status"`
	CancelAtPeriodEnd  bool                `json:"cancel_at_period_end"`
	CanceledAt         types.UnixTimestamp `json:"canceled_at"`
	CurrentPeriodStart types.UnixTimestamp `json:"current_period_start"`
	CurrentPeriodEnd   types.UnixTimestamp `json:"current_period_end"`
	TrialEnd           types.UnixTimestamp `json:"trial_end"`
	Metadata           map[string]string   `json:"metadata"`
	Plan               struct {
		ID string `json:"id"`
	} `json:"plan"`
	Items struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (p *subscriptionPayload) planID() string {
	if len(p.Items.Data) > 0 && p.Items.Data[0].Price.ID != "" {
		return p.Items.Data[0].Price.ID
	}
	return p.Plan.ID
}

func (p *subscriptionPayload) isCompanyScoped() bool {
	return p.Metadata[types.MetadataKeyAccountScope] == types.AccountScopeCompany
}

// SubscriptionLifecycleService owns the canonical subscription record per
// external subscription ID. The provider's status field is authoritative on
// every event; this service reconciles only derived facts (owning user,
// premium entitlement, cancellation reason, welcome notification).
type SubscriptionLifecycleService struct {
	ServiceParams
}

func NewSubscriptionLifecycleService(params ServiceParams) *SubscriptionLifecycleService {
	return &SubscriptionLifecycleService{ServiceParams: params}
}

func parseSubscriptionPayload(event *stripe.Event) (*subscriptionPayload, error) {
	if event.Data == nil {
		return nil, ierr.NewError("event has no payload").
			WithHint("Subscription events must carry the subscription object").
			WithReportableDetails(map[string]any{
				"event_id": event.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to parse subscription payload").
			WithReportableDetails(map[string]any{
				"event_id": event.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	if payload.ID == "" {
		return nil, ierr.NewError("subscription payload has no id").
			WithHint("Provider subscription events must carry the subscription ID").
			WithReportableDetails(map[string]any{
				"event_id": event.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	return &payload, nil
}

// HandleSubscriptionCreated creates the local record on first sight of a
// subscription ID. Redelivery and out-of-order arrival after an updated
// event fall through to the same upsert.
func (s *SubscriptionLifecycleService) HandleSubscriptionCreated(ctx context.Context, event *stripe.Event) error {
	payload, err := parseSubscriptionPayload(event)
	if err != nil {
		return err
	}
	_, err = s.upsertFromPayload(ctx, event.ID, payload)
	return err
}

// HandleSubscriptionUpdated applies the provider's full state to the local
// record. An update for a subscription never seen locally upserts instead
// of failing, since delivery order is not guaranteed.
func (s *SubscriptionLifecycleService) HandleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	payload, err := parseSubscriptionPayload(event)
	if err != nil {
		return err
	}
	_, err = s.upsertFromPayload(ctx, event.ID, payload)
	return err
}

// upsertFromPayload is the shared created/updated path. It resolves the
// owning user, applies defensive period extraction, persists the record and
// decides whether the welcome notification fires.
func (s *SubscriptionLifecycleService) upsertFromPayload(ctx context.Context, eventID string, payload *subscriptionPayload) (*subscription.Subscription, error) {
	status := types.SubscriptionStatus(payload.Status)
	if err := status.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.ID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	var owner *user.User
	if existing == nil || existing.UserID == nil {
		owner, err = s.resolveOwner(ctx, eventID, payload)
		if err != nil {
			return nil, err
		}
	} else {
		owner, err = s.UserRepo.Get(ctx, *existing.UserID)
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	sub := existing
	created := false
	if sub == nil {
		created = true
		now := time.Now().UTC()
		sub = &subscription.Subscription{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	previousStatus := sub.Status

	sub.ExternalID = payload.ID
	if payload.Customer.ID != "" {
		sub.ExternalCustomerID = payload.Customer.ID
	}
	if owner != nil {
		ownerID := owner.ID
		sub.UserID = &ownerID
	}
	sub.Status = status
	if planID := payload.planID(); planID != "" {
		sub.PlanID = planID
	}
	s.applyPeriod(sub, payload, eventID)
	s.applyCancellationFields(sub, payload, eventID)
	if payload.isCompanyScoped() {
		sub.Metadata = withMetadata(sub.Metadata, types.MetadataKeyAccountScope, types.AccountScopeCompany)
	}
	sub.UpdatedAt = time.Now().UTC()

	if created {
		if err := s.SubscriptionRepo.Create(ctx, sub); err != nil {
			return nil, err
		}
	} else {
		if err := s.SubscriptionRepo.Update(ctx, sub); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("reconciled subscription",
		"event_id", eventID,
		"subscription_id", sub.ExternalID,
		"status", sub.Status,
		"created", created,
	)

	// Entitlement is derived from holding at least one entitling
	// subscription, so any upsert landing in such a status grants it.
	// Revocation happens only on the deleted path, where the user's other
	// subscriptions are counted.
	if owner != nil && status.IsEntitling() {
		if err := s.UserRepo.SetPremiumEntitlement(ctx, owner.ID, true); err != nil {
			return nil, err
		}
		s.Logger.Infow("premium entitlement granted",
			"event_id", eventID,
			"user_id", owner.ID,
			"subscription_id", sub.ExternalID,
		)
	}

	// The welcome notification fires once: on creation with active status,
	// or on the first update that flips a stored incomplete record active.
	if status == types.SubscriptionStatusActive && owner != nil {
		if created || previousStatus.IsIncomplete() {
			s.sendWelcomeNotification(eventID, owner, sub)
		}
	}

	return sub, nil
}

// resolveOwner maps the external customer ID to a user. Company-scoped
// payloads resolve to no owner. Transient lookup failures are retried
// before they surface; only a definitive not-found is an invariant
// violation, since an individual subscription must never be orphaned.
func (s *SubscriptionLifecycleService) resolveOwner(ctx context.Context, eventID string, payload *subscriptionPayload) (*user.User, error) {
	if payload.isCompanyScoped() {
		return nil, nil
	}

	customerID := payload.Customer.ID
	if customerID == "" {
		return nil, ierr.NewError("subscription has no customer reference").
			WithHint("Individual subscriptions must carry the provider customer ID").
			WithReportableDetails(map[string]any{
				"event_id":        eventID,
				"subscription_id": payload.ID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	cacheKey := customerUserCachePrefix + customerID
	if cached, ok := s.Cache.Get(ctx, cacheKey); ok {
		if owner, ok := cached.(*user.User); ok {
			return owner, nil
		}
	}

	var owner *user.User
	lookup := func() error {
		found, err := s.UserRepo.FindByExternalCustomerID(ctx, customerID)
		if err != nil {
			if ierr.IsNotFound(err) {
				// definitive, do not retry
				return backoff.Permanent(err)
			}
			s.Logger.Warnw("owning user lookup failed, retrying",
				"event_id", eventID,
				"external_customer_id", customerID,
				"error", err,
			)
			return err
		}
		owner = found
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = userLookupBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	err := backoff.Retry(lookup, backoff.WithContext(
		backoff.WithMaxRetries(bo, userLookupAttempts-1), ctx))
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.NewError("no user for external customer id").
				WithHint("Individual subscriptions require an owning user").
				WithReportableDetails(map[string]any{
					"event_id":             eventID,
					"subscription_id":      payload.ID,
					"external_customer_id": customerID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		return nil, ierr.WithError(err).
			WithHintf("Owning user lookup failed after %d attempts", userLookupAttempts).
			Mark(ierr.ErrDatabase)
	}

	s.Cache.Set(ctx, cacheKey, owner, 0)
	return owner, nil
}

// applyPeriod extracts current_period_start/end defensively. Incomplete
// statuses are not expected to carry periods and keep them omitted; for
// other statuses an invalid value is dropped with a warning, never written.
func (s *SubscriptionLifecycleService) applyPeriod(sub *subscription.Subscription, payload *subscriptionPayload, eventID string) {
	if sub.Status.IsIncomplete() {
		sub.CurrentPeriodStart = nil
		sub.CurrentPeriodEnd = nil
		return
	}

	if start, ok := payload.CurrentPeriodStart.Time(); ok {
		sub.CurrentPeriodStart = &start
	} else if payload.CurrentPeriodStart.IsSet() {
		s.Logger.Warnw("dropping malformed current_period_start",
			"event_id", eventID,
			"subscription_id", payload.ID,
		)
	}

	if end, ok := payload.CurrentPeriodEnd.Time(); ok {
		sub.CurrentPeriodEnd = &end
	} else if payload.CurrentPeriodEnd.IsSet() {
		s.Logger.Warnw("dropping malformed current_period_end",
			"event_id", eventID,
			"subscription_id", payload.ID,
		)
	}
}

// applyCancellationFields tracks cancel_at_period_end transitions both ways
// and persists canceled_at when provided
func (s *SubscriptionLifecycleService) applyCancellationFields(sub *subscription.Subscription, payload *subscriptionPayload, eventID string) {
	if payload.CancelAtPeriodEnd != sub.CancelAtPeriodEnd {
		s.Logger.Infow("cancel_at_period_end changed",
			"event_id", eventID,
			"subscription_id", payload.ID,
			"cancel_at_period_end", payload.CancelAtPeriodEnd,
		)
	}
	sub.CancelAtPeriodEnd = payload.CancelAtPeriodEnd

	if at, ok := payload.CanceledAt.Time(); ok {
		sub.CanceledAt = &at
	} else if payload.CanceledAt.IsSet() {
		s.Logger.Warnw("dropping malformed canceled_at",
			"event_id", eventID,
			"subscription_id", payload.ID,
		)
	}
	if !payload.CancelAtPeriodEnd && !payload.CanceledAt.IsSet() {
		sub.CanceledAt = nil
	}
}

// HandleSubscriptionDeleted is terminal and is the single place premium
// entitlement is revoked. An absent local record means the deletion was
// already reconciled and is not an error.
func (s *SubscriptionLifecycleService) HandleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	payload, err := parseSubscriptionPayload(event)
	if err != nil {
		return err
	}

	sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Infow("deletion for unknown subscription, already reconciled",
				"event_id", event.ID,
				"subscription_id", payload.ID,
			)
			return nil
		}
		return err
	}

	reason := deriveCancellationReason(sub, payload)

	sub.Status = types.SubscriptionStatusCanceled
	sub.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	if at, ok := payload.CanceledAt.Time(); ok {
		sub.CanceledAt = &at
	} else if payload.CanceledAt.IsSet() {
		s.Logger.Warnw("dropping malformed canceled_at",
			"event_id", event.ID,
			"subscription_id", payload.ID,
		)
	}
	sub.Metadata = withMetadata(sub.Metadata, types.MetadataKeyCancellationReason, reason.String())
	sub.UpdatedAt = time.Now().UTC()

	var remaining int
	err = s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.SubscriptionRepo.Update(ctx, sub); err != nil {
			return err
		}
		if sub.UserID == nil {
			return nil
		}

		// Entitlement follows the user's remaining entitling subscriptions,
		// not this one alone: a second active or trialing subscription must
		// not lose entitlement when this one is canceled.
		remaining, err = s.SubscriptionRepo.CountOtherEntitling(ctx, *sub.UserID, sub.ExternalID)
		if err != nil {
			return err
		}
		return s.UserRepo.SetPremiumEntitlement(ctx, *sub.UserID, remaining > 0)
	})
	if err != nil {
		return err
	}

	s.Logger.Infow("subscription canceled",
		"event_id", event.ID,
		"subscription_id", sub.ExternalID,
		"cancellation_reason", reason,
	)

	if sub.UserID == nil {
		return nil
	}

	s.Logger.Infow("premium entitlement reconciled",
		"event_id", event.ID,
		"user_id", *sub.UserID,
		"entitled", remaining > 0,
		"other_entitling_subscriptions", remaining,
	)

	if owner, err := s.UserRepo.Get(ctx, *sub.UserID); err == nil {
		s.Notifier.Dispatch(&email.NotificationRequest{
			TemplateName: email.TemplateSubscriptionCanceled,
			Recipient:    owner.Email,
			Subject:      "Your subscription has been canceled",
			Params: map[string]string{
				"name":                owner.Name,
				"subscription_id":     sub.ExternalID,
				"cancellation_reason": reason.String(),
			},
			RequestID: event.ID,
		})
	}

	return nil
}

// deriveCancellationReason applies the fixed priority order: explicit
// metadata reason, then unpaid status, then scheduled end-of-period
// cancellation, then the user-requested default.
func deriveCancellationReason(sub *subscription.Subscription, payload *subscriptionPayload) types.CancellationReason {
	if explicit := payload.Metadata[types.MetadataKeyCancellationReason]; explicit != "" {
		return types.CancellationReason(explicit)
	}
	if explicit := sub.Metadata[types.MetadataKeyCancellationReason]; explicit != "" {
		return types.CancellationReason(explicit)
	}

	status := types.SubscriptionStatus(payload.Status)
	if status == types.SubscriptionStatusUnpaid || sub.Status == types.SubscriptionStatusUnpaid {
		return types.CancellationReasonUnpaid
	}

	if payload.CanceledAt.IsSet() && payload.CancelAtPeriodEnd {
		return types.CancellationReasonEndOfPeriod
	}

	return types.CancellationReasonUserRequested
}

// HandlePendingUpdateApplied records that a pending plan change took
// effect. Plan and period refresh; status and entitlement never change.
func (s *SubscriptionLifecycleService) HandlePendingUpdateApplied(ctx context.Context, event *stripe.Event) error {
	payload, err := parseSubscriptionPayload(event)
	if err != nil {
		return err
	}

	sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("pending update applied for unknown subscription",
				"event_id", event.ID,
				"subscription_id", payload.ID,
			)
			return nil
		}
		return err
	}

	if planID := payload.planID(); planID != "" {
		sub.PlanID = planID
	}
	s.applyPeriod(sub, payload, event.ID)
	sub.Metadata = withMetadata(sub.Metadata, types.MetadataKeyPendingUpdate, "applied")
	sub.UpdatedAt = time.Now().UTC()

	return s.SubscriptionRepo.Update(ctx, sub)
}

// HandlePendingUpdateExpired annotates that a pending plan change lapsed
// without taking effect
func (s *SubscriptionLifecycleService) HandlePendingUpdateExpired(ctx context.Context, event *stripe.Event) error {
	payload, err := parseSubscriptionPayload(event)
	if err != nil {
		return err
	}

	sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("pending update expired for unknown subscription",
				"event_id", event.ID,
				"subscription_id", payload.ID,
			)
			return nil
		}
		return err
	}

	sub.Metadata = withMetadata(sub.Metadata, types.MetadataKeyPendingUpdate, "expired")
	sub.UpdatedAt = time.Now().UTC()

	return s.SubscriptionRepo.Update(ctx, sub)
}

// HandleTrialWillEnd annotates the trial-ending state and sends a
// best-effort reminder. It never mutates status or entitlement.
func (s *SubscriptionLifecycleService) HandleTrialWillEnd(ctx context.Context, event *stripe.Event) error {
	payload, err := parseSubscriptionPayload(event)
	if err != nil {
		return err
	}

	sub, err := s.SubscriptionRepo.GetByExternalID(ctx, payload.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("trial ending for unknown subscription",
				"event_id", event.ID,
				"subscription_id", payload.ID,
			)
			return nil
		}
		return err
	}

	var trialEndsAt string
	if end, ok := payload.TrialEnd.Time(); ok {
		trialEndsAt = end.Format(time.RFC3339)
	} else if payload.TrialEnd.IsSet() {
		s.Logger.Warnw("dropping malformed trial_end",
			"event_id", event.ID,
			"subscription_id", payload.ID,
		)
	}
	if trialEndsAt != "" {
		sub.Metadata = withMetadata(sub.Metadata, types.MetadataKeyTrialEndsAt, trialEndsAt)
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := s.SubscriptionRepo.Update(ctx, sub); err != nil {
		return err
	}

	if sub.UserID != nil {
		if owner, err := s.UserRepo.Get(ctx, *sub.UserID); err == nil {
			s.Notifier.Dispatch(&email.NotificationRequest{
				TemplateName: email.TemplateTrialEnding,
				Recipient:    owner.Email,
				Subject:      "Your trial is ending soon",
				Params: map[string]string{
					"name":            owner.Name,
					"subscription_id": sub.ExternalID,
					"trial_ends_at":   trialEndsAt,
				},
				RequestID: event.ID,
			})
		}
	}

	return nil
}

func (s *SubscriptionLifecycleService) sendWelcomeNotification(eventID string, owner *user.User, sub *subscription.Subscription) {
	s.Notifier.Dispatch(&email.NotificationRequest{
		TemplateName: email.TemplateSubscriptionWelcome,
		Recipient:    owner.Email,
		Subject:      "Welcome to your premium subscription",
		Params: map[string]string{
			"name":            owner.Name,
			"subscription_id": sub.ExternalID,
			"plan_id":         sub.PlanID,
		},
		RequestID: eventID,
	})
}

func withMetadata(md types.Metadata, key, value string) types.Metadata {
	if md == nil {
		md = types.Metadata{}
	}
	md[key] = value
	return md
}
