package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/motorsouq/billing/internal/service"
)

// ManualPaymentHandler exposes the reviewed manual payment lifecycle
type ManualPaymentHandler struct {
	service *service.ManualPaymentService
	logger  *logger.Logger
}

func NewManualPaymentHandler(svc *service.ManualPaymentService, logger *logger.Logger) *ManualPaymentHandler {
	return &ManualPaymentHandler{service: svc, logger: logger}
}

type createManualPaymentRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	ListingKey string `json:"listing_key" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	Currency   string `json:"currency" binding:"required,len=3"`
}

type reviewManualPaymentRequest struct {
	ReviewerNote string `json:"reviewer_note"`
}

// CreateRequest handles the POST /manual-payments endpoint
func (h *ManualPaymentHandler) CreateRequest(c *gin.Context) {
	var req createManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.CreateRequest(c.Request.Context(), req.UserID, req.ListingKey, req.Amount, req.Currency)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// Approve handles the POST /manual-payments/:id/approve endpoint
func (h *ManualPaymentHandler) Approve(c *gin.Context) {
	var req reviewManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.Approve(c.Request.Context(), c.Param("id"), req.ReviewerNote)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// Reject handles the POST /manual-payments/:id/reject endpoint
func (h *ManualPaymentHandler) Reject(c *gin.Context) {
	var req reviewManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.ReviewerNote)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// StartProcessing handles the POST /manual-payments/:id/process endpoint
func (h *ManualPaymentHandler) StartProcessing(c *gin.Context) {
	request, err := h.service.StartProcessing(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// Complete handles the POST /manual-payments/:id/complete endpoint
func (h *ManualPaymentHandler) Complete(c *gin.Context) {
	request, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// ListPending handles the GET /manual-payments/pending endpoint
func (h *ManualPaymentHandler) ListPending(c *gin.Context) {
	requests, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": requests})
}

func (h *ManualPaymentHandler) respondError(c *gin.Context, err error) {
	h.logger.Errorw("manual payment request failed", "error", err)
	c.JSON(ierr.HTTPStatusFromErr(err), gin.H{"error": err.Error()})
}
