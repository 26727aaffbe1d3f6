package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	v1 "github.com/motorsouq/billing/internal/api/v1"
)

type Handlers struct {
	Webhook       *v1.WebhookHandler
	ManualPayment *v1.ManualPaymentHandler
}

func NewRouter(handlers Handlers) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks
	router.POST("/webhooks/billing", handlers.Webhook.HandleBillingWebhook)

	// v1 routes
	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	manualPayments := router.Group("/manual-payments")
	{
		manualPayments.POST("", handlers.ManualPayment.CreateRequest)
		manualPayments.GET("/pending", handlers.ManualPayment.ListPending)
		manualPayments.POST("/:id/approve", handlers.ManualPayment.Approve)
		manualPayments.POST("/:id/reject", handlers.ManualPayment.Reject)
		manualPayments.POST("/:id/process", handlers.ManualPayment.StartProcessing)
		manualPayments.POST("/:id/complete", handlers.ManualPayment.Complete)
	}
}
