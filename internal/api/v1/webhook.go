package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/motorsouq/billing/internal/config"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/service"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookHandler handles the provider webhook endpoint. It only parses and
// verifies the envelope; all processing lives in the dispatcher.
type WebhookHandler struct {
	config     *config.Configuration
	logger     *logger.Logger
	dispatcher *service.EventDispatcher
}

func NewWebhookHandler(cfg *config.Configuration, logger *logger.Logger, dispatcher *service.EventDispatcher) *WebhookHandler {
	return &WebhookHandler{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
	}
}

// HandleBillingWebhook handles the POST /webhooks/billing endpoint
func (h *WebhookHandler) HandleBillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Errorw("failed to read request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	event, err := h.parseEvent(c, body)
	if err != nil {
		h.logger.Errorw("failed to parse/verify webhook event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to verify webhook signature or parse event",
		})
		return
	}

	outcome, err := h.dispatcher.ProcessEvent(c.Request.Context(), event)
	if err != nil {
		h.logger.Errorw("failed to process webhook event",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"error", err,
		)
		// A non-2xx response makes the provider redeliver the event later
		c.JSON(ierr.HTTPStatusFromErr(err), gin.H{
			"error": "Failed to process webhook event",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome.Type,
		"reason":  outcome.Reason,
	})
}

// parseEvent verifies the signature when a webhook secret is configured.
// Local environments without a secret parse the envelope unverified.
func (h *WebhookHandler) parseEvent(c *gin.Context, body []byte) (*stripe.Event, error) {
	secret := h.config.Billing.WebhookSecret
	if secret == "" {
		h.logger.Warnw("webhook secret not configured, skipping signature verification")
		var event stripe.Event
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, err
		}
		return &event, nil
	}

	signature := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEventWithOptions(body, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}
