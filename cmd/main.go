package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fibertrak/fibertrak-backend/internal/clients/redis"
	"github.com/fibertrak/fibertrak-backend/internal/db"
	"github.com/fibertrak/fibertrak-backend/internal/handlers"
	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/middleware"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
	"github.com/fibertrak/fibertrak-backend/internal/repos"
	"github.com/fibertrak/fibertrak-backend/internal/server"
	"github.com/fibertrak/fibertrak-backend/internal/services"
	"github.com/fibertrak/fibertrak-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	port := utils.GetEnv("PORT", "8080", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	notificationRepo := repos.NewNotificationRepo(thePG, log)

	// Realtime hub
	log.Info("Setting up realtime hub...")
	hub := realtime.NewHub(log)

	// Fan-out: redis bus when configured, local hub otherwise.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var emit services.Emitter
	bus, err := redis.NewBus(log)
	if err != nil {
		log.Warn("Redis bus unavailable, falling back to local fan-out", "error", err)
		emit = services.NewHubEmitter(hub)
	} else {
		defer bus.Close()
		if err := bus.StartForwarder(ctx, hub.Broadcast); err != nil {
			log.Error("Could not start redis forwarder", "error", err)
			os.Exit(1)
		}
		emit = services.NewBusEmitter(bus)
	}

	// Services
	log.Info("Setting up services...")
	notificationService := services.NewNotificationService(thePG, log, notificationRepo, emit)
	realtimePublisher := services.NewRealtimePublisher(log, emit)

	// Handlers
	log.Info("Setting up handlers...")
	wsHandler := handlers.NewWSHandler(log, hub, emit, notificationService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, utils.GetEnvAsInt("NOTIFICATION_PAGE_SIZE", 50, log))
	eventHandler := handlers.NewEventHandler(realtimePublisher)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:      authMiddleware,
		WSHandler:           wsHandler,
		NotificationHandler: notificationHandler,
		EventHandler:        eventHandler,
	})

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("Server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	shutdownTimeout := utils.GetEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second, log)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
