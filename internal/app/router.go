package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridecontract/internal/handler"
	"ridecontract/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	RatingHandler  *handler.RatingHandler
	AccountHandler *handler.AccountHandler
	Authenticator  *middleware.CallerAuthenticator
	ResponseStore  middleware.ResponseStore
	Gatherer       prometheus.Gatherer
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes. Every route needs a caller identity.
	v1 := router.Group("/v1")
	v1.Use(middleware.CallerMiddleware(deps.Authenticator))
	v1.Use(middleware.ContractTraceMiddleware())
	v1.Use(middleware.IdempotencyMiddleware(deps.ResponseStore))
	{
		// Ride contract routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.GET("/:id/destination", deps.RideHandler.GetDestination)
			rides.GET("/:id/price", deps.RideHandler.GetPrice)
			rides.GET("/:id/transfers", deps.RideHandler.ListTransfers)

			rides.POST("/:id/accept", deps.RideHandler.AcceptRide)
			rides.POST("/:id/complete", deps.RideHandler.CompleteRide)
			rides.POST("/:id/mark-complete", deps.RideHandler.MarkRideComplete)
			rides.POST("/:id/dispute", deps.RideHandler.DisputeRide)
			rides.POST("/:id/resolve", deps.RideHandler.ResolveDispute)
			rides.POST("/:id/release", deps.RideHandler.ReleasePayment)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/refund", deps.RideHandler.RequestRefund)
			rides.POST("/:id/funds", deps.RideHandler.AddFunds)
			rides.PUT("/:id/destination", deps.RideHandler.UpdateDestination)
			rides.PUT("/:id/price", deps.RideHandler.UpdatePrice)
			rides.POST("/:id/rate-driver", deps.RideHandler.RateDriver)
			rides.POST("/:id/rate-rider", deps.RideHandler.RateRider)
		}

		// Rating routes.
		v1.GET("/drivers/:id/rating", deps.RatingHandler.GetDriverRating)
		v1.GET("/riders/:id/rating", deps.RatingHandler.GetRiderRating)

		// Account routes.
		v1.GET("/accounts/:id/balance", deps.AccountHandler.GetBalance)
	}

	return router
}
