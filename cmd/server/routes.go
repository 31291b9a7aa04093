package main

import (
	"github.com/gin-gonic/gin"

	"paygate.backend/internal/interfaces/http/handlers"
)

type routeDeps struct {
	paymentHandler  *handlers.PaymentHandler
	refundHandler   *handlers.RefundHandler
	webhookHandler  *handlers.WebhookHandler
	providerHandler *handlers.ProviderHandler
	authMiddleware  gin.HandlerFunc
}

// registerAPIV1Routes wires spec.md §8's routes. Webhook delivery is
// authenticated by the provider adapter's own signature scheme, not by the
// client-facing JWT middleware; every other route is a merchant/operator
// call and requires a bearer token.
func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/v1")
	{
		payments := v1.Group("/payments")
		payments.Use(d.authMiddleware)
		{
			payments.POST("", d.paymentHandler.Create)
			payments.GET("/:id", d.paymentHandler.GetByID)
			payments.POST("/:id/refund", d.refundHandler.Create)
		}

		providers := v1.Group("/providers")
		providers.Use(d.authMiddleware)
		{
			providers.GET("", d.providerHandler.List)
			providers.GET("/active", d.providerHandler.Active)
			providers.GET("/:id", d.providerHandler.GetByID)
			providers.POST("", d.providerHandler.Create)
			providers.PUT("/:id", d.providerHandler.Update)
			providers.PATCH("/:id/status", d.providerHandler.UpdateStatus)
			providers.DELETE("/:id", d.providerHandler.Delete)
		}

		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/:provider", d.webhookHandler.Receive)
		}
	}
}
