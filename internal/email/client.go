package email

import (
	"context"
	"fmt"

	"github.com/motorsouq/billing/internal/config"
	"github.com/resend/resend-go/v2"
)

// Client wraps the resend client. When disabled (no API key or disabled in
// config) sends succeed silently so local environments never block on mail.
type Client struct {
	client      *resend.Client
	enabled     bool
	fromAddress string
	replyTo     string
}

// NewClient creates a new email client from configuration
func NewClient(cfg *config.Configuration) *Client {
	if !cfg.Email.Enabled || cfg.Email.APIKey == "" {
		return &Client{enabled: false}
	}

	return &Client{
		client:      resend.NewClient(cfg.Email.APIKey),
		enabled:     true,
		fromAddress: cfg.Email.FromAddress,
		replyTo:     cfg.Email.ReplyTo,
	}
}

// IsEnabled returns whether the email client is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// Send delivers a rendered email and returns the provider message ID
func (c *Client) Send(ctx context.Context, to, subject, html string) (string, error) {
	if !c.enabled {
		return "", nil
	}

	params := &resend.SendEmailRequest{
		From:    c.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    html,
		ReplyTo: c.replyTo,
	}

	sent, err := c.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	return sent.Id, nil
}
