package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"cobranca/internal/handler"
	"cobranca/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	ChargeHandler    *handler.ChargeHandler
	IdempotencyStore middleware.IdempotencyStore // optional
	NewRelicApp      *newrelic.Application       // optional
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.ChargeAttributes())
	}

	if deps.IdempotencyStore != nil {
		router.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		charges := v1.Group("/charges")
		{
			charges.POST("", deps.ChargeHandler.CreateCharge)
			charges.GET("/:id", deps.ChargeHandler.GetCharge)
			charges.PATCH("/:id", deps.ChargeHandler.UpdateChargeDetails)
			charges.DELETE("/:id", deps.ChargeHandler.DeleteCharge)
			charges.POST("/:id/payment", deps.ChargeHandler.RegisterManualPayment)
			charges.DELETE("/:id/payment", deps.ChargeHandler.UndoPayment)
			charges.GET("/:id/pix", deps.ChargeHandler.GetPixQRCode)
		}
	}

	return router
}
