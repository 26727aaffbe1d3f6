package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/motorsouq/billing/internal/email"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/stretchr/testify/assert"
)

// stubSender lives here instead of testutil because testutil depends on
// this package for the base suite
type stubSender struct {
	mu       sync.Mutex
	sent     []*email.NotificationRequest
	err      error
	panicMsg string
}

func (s *stubSender) SendTemplatedNotification(ctx context.Context, req *email.NotificationRequest) (*email.NotificationResult, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, req)
	return &email.NotificationResult{Success: true, MessageID: "msg_1"}, nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatchDeliversDetached(t *testing.T) {
	sender := &stubSender{}
	dispatcher := NewDispatcher(sender, logger.NewNopLogger())

	dispatcher.Dispatch(&email.NotificationRequest{
		TemplateName: email.TemplateSubscriptionWelcome,
		Recipient:    "u1@example.com",
		Subject:      "Welcome",
	})
	dispatcher.Wait()

	assert.Equal(t, 1, sender.count())
}

func TestDispatchSwallowsSenderErrors(t *testing.T) {
	sender := &stubSender{
		err: ierr.NewError("provider unavailable").Mark(ierr.ErrSystem),
	}
	dispatcher := NewDispatcher(sender, logger.NewNopLogger())

	dispatcher.Dispatch(&email.NotificationRequest{
		TemplateName: email.TemplatePaymentFailed,
		Recipient:    "u1@example.com",
		Subject:      "Payment failed",
	})
	dispatcher.Wait()

	assert.Equal(t, 0, sender.count())
}

func TestDispatchRecoversSenderPanic(t *testing.T) {
	sender := &stubSender{panicMsg: "template engine broke"}
	dispatcher := NewDispatcher(sender, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		dispatcher.Dispatch(&email.NotificationRequest{
			TemplateName: email.TemplateTrialEnding,
			Recipient:    "u1@example.com",
			Subject:      "Trial ending",
		})
		dispatcher.Wait()
	})
}

func TestWaitSynchronizesManyDispatches(t *testing.T) {
	sender := &stubSender{}
	dispatcher := NewDispatcher(sender, logger.NewNopLogger())

	for i := 0; i < 20; i++ {
		dispatcher.Dispatch(&email.NotificationRequest{
			TemplateName: email.TemplateSubscriptionCanceled,
			Recipient:    "u1@example.com",
			Subject:      "Canceled",
		})
	}
	dispatcher.Wait()

	assert.Equal(t, 20, sender.count())
}
