package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"todaride/internal/handler"
	"todaride/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler     *handler.RideHandler
	PresenceHandler *handler.PresenceHandler
	QueueHandler    *handler.QueueHandler
	JWTSecret       []byte
	JWTIssuer       string
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.Metrics())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.Authenticate(deps.JWTSecret, deps.JWTIssuer))
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("/quote", deps.RideHandler.Quote)
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/transition", deps.RideHandler.TransitionRide)
			rides.POST("/:id/dispatch", deps.RideHandler.Redispatch)
		}

		// Presence routes.
		presence := v1.Group("/presence")
		{
			presence.PUT("", deps.PresenceHandler.UpsertPresence)
			presence.GET("/nearby", deps.PresenceHandler.Nearby)
		}

		// Terminal queue routes.
		terminals := v1.Group("/terminals")
		{
			terminals.POST("", deps.QueueHandler.CreateTerminal)
			terminals.POST("/:id/reservations", deps.QueueHandler.Reserve)
			terminals.GET("/:id/queue", deps.QueueHandler.GetQueue)
			terminals.POST("/:id/dispatch-next", deps.QueueHandler.DispatchNext)
		}

		reservations := v1.Group("/reservations")
		{
			reservations.POST("/:id/cancel", deps.QueueHandler.CancelReservation)
			reservations.POST("/:id/complete", deps.QueueHandler.CompleteReservation)
		}
	}

	return router
}
