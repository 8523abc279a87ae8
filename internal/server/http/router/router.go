package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/dinehall/tableside/internal/server/http/handlers"
	"github.com/dinehall/tableside/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware.
func Setup(facade handlers.TablesideFacade, health handlers.HealthChecker, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.DecompressRequest())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	sessionHandler := handlers.NewSessionHandler(facade)
	orderHandler := handlers.NewOrderHandler(facade)
	paymentHandler := handlers.NewPaymentHandler(facade)
	healthHandler := handlers.NewHealthHandler(health)

	api := engine.Group("/api")
	api.GET("/health", healthHandler.Check)
	api.POST("/tables/:tableID/session", sessionHandler.Start)
	api.POST("/gateway/callback", paymentHandler.GatewayCallback)

	sessions := api.Group("/sessions/:sessionID")
	sessions.POST("/orders", orderHandler.Submit)
	sessions.GET("/orders", orderHandler.List)
	sessions.POST("/checkout", paymentHandler.Checkout)
	sessions.POST("/abandon", sessionHandler.Abandon)

	return engine
}
