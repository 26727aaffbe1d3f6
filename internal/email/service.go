package email

import (
	"context"
	"fmt"
	"sort"
	"strings"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
)

// NotificationRequest describes one templated notification send
type NotificationRequest struct {
	TemplateName string            `json:"template_name"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Params       map[string]string `json:"params,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
}

// NotificationResult is the outcome of a templated notification send
type NotificationResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
}

// Template names used by the billing pipeline
const (
	TemplateSubscriptionWelcome  = "subscription_welcome"
	TemplateSubscriptionCanceled = "subscription_canceled"
	TemplateTrialEnding          = "trial_ending"
	TemplatePaymentFailed        = "payment_failed"
)

// Service renders and delivers templated notifications. Template content
// is owned by the email subsystem; this service only fills placeholders.
type Service struct {
	client *Client
	logger *logger.Logger
}

func NewService(client *Client, logger *logger.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// SendTemplatedNotification renders the named template with params and
// delivers it to the recipient
func (s *Service) SendTemplatedNotification(ctx context.Context, req *NotificationRequest) (*NotificationResult, error) {
	if req.Recipient == "" {
		return nil, ierr.NewError("recipient is required").
			WithHint("Notification recipient cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if req.TemplateName == "" {
		return nil, ierr.NewError("template name is required").
			WithHint("Notification template name cannot be empty").
			Mark(ierr.ErrValidation)
	}

	html := renderTemplate(req.TemplateName, req.Params)

	messageID, err := s.client.Send(ctx, req.Recipient, req.Subject, html)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed to deliver %s notification", req.TemplateName).
			Mark(ierr.ErrSystem)
	}

	s.logger.Infow("sent templated notification",
		"template", req.TemplateName,
		"recipient", req.Recipient,
		"message_id", messageID,
		"request_id", req.RequestID,
	)

	return &NotificationResult{Success: true, MessageID: messageID}, nil
}

// renderTemplate produces a minimal HTML body. Real template content lives
// with the email subsystem, out of scope here; the placeholder rendering
// keeps params visible for local environments and tests.
func renderTemplate(name string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<p>[%s]</p>", name))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString(fmt.Sprintf("<p>%s: %s</p>", k, params[k]))
	}
	return b.String()
}
