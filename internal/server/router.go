package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fibertrak/fibertrak-backend/internal/handlers"
	"github.com/fibertrak/fibertrak-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware      *middleware.AuthMiddleware
	WSHandler           *handlers.WSHandler
	NotificationHandler *handlers.NotificationHandler
	EventHandler        *handlers.EventHandler
	AllowOrigins        []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Realtime bus
	protected.GET("/ws", cfg.WSHandler.Stream)
	// Notifications (durable copies)
	protected.GET("/notifications", cfg.NotificationHandler.List)
	protected.GET("/notifications/unread-count", cfg.NotificationHandler.UnreadCount)
	protected.POST("/notifications/mark-read", cfg.NotificationHandler.MarkRead)
	// Entity-change ingest for trusted internal producers
	protected.POST("/events", cfg.EventHandler.Publish)

	return router
}
