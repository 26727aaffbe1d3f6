package testutil

import (
	"context"
	"sync"

	"github.com/motorsouq/billing/internal/email"
	"github.com/motorsouq/billing/internal/types"
)

// RecordingSender implements notification.Sender and records every request.
// Err makes sends fail; PanicMessage makes the sender panic, for exercising
// the dispatcher's error boundary.
type RecordingSender struct {
	mu       sync.Mutex
	requests []*email.NotificationRequest

	Err          error
	PanicMessage string
}

// NewRecordingSender creates a new recording notification sender
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

func (s *RecordingSender) SendTemplatedNotification(ctx context.Context, req *email.NotificationRequest) (*email.NotificationResult, error) {
	if s.PanicMessage != "" {
		panic(s.PanicMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	s.requests = append(s.requests, req)
	return &email.NotificationResult{
		Success:   true,
		MessageID: types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION),
	}, nil
}

// Requests returns all recorded requests
func (s *RecordingSender) Requests() []*email.NotificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*email.NotificationRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// CountByTemplate counts recorded requests for the template name
func (s *RecordingSender) CountByTemplate(templateName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, req := range s.requests {
		if req.TemplateName == templateName {
			count++
		}
	}
	return count
}

// Clear drops all recorded requests
func (s *RecordingSender) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.Err = nil
	s.PanicMessage = ""
}
