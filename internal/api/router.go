package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/api/handler"
)

func SetupRouter(paymentHandler *handler.PaymentHandler) *gin.Engine {
	r := gin.Default()

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "up"})
	})

	v1 := r.Group("/v1")
	{
		checkout := v1.Group("/checkout")
		{
			checkout.POST("", paymentHandler.CreateCheckout)
			checkout.GET("", paymentHandler.GetCheckout)
			checkout.POST("/webhook", paymentHandler.HandleWebhook)
		}
	}

	return r
}
