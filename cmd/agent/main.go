package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callwire/internal/core/domain"
	"callwire/internal/core/services"
	httphandlers "callwire/internal/handlers/http"
	"callwire/internal/infrastructure/middleware"
	"callwire/internal/infrastructure/monitoring"
	"callwire/internal/infrastructure/repositories"
	"callwire/internal/infrastructure/uilink"
	"callwire/pkg/config"
	"callwire/pkg/logger"
	"callwire/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "callwire",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repositories
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	callStore := repoFactory.CreateCallStore()
	registry := repoFactory.CreateParticipantRegistry()

	// The agent itself is the first participant of its room and therefore
	// the moderator.
	self := &domain.Participant{
		ID:       uuid.NewString(),
		Name:     cfg.Conference.DisplayName,
		RoomName: cfg.Conference.RoomName,
		Role:     domain.RoleModerator,
		JoinedAt: time.Now(),
	}
	if err := registry.Add(context.Background(), self); err != nil {
		log.Fatalw("failed to register session participant", "error", err)
	}

	// Initialize UI link and surfaces
	hub := uilink.NewHub(log)
	notifier := uilink.NewWSNotifier(hub)
	layout := uilink.NewWSLayout(hub)

	// Initialize services
	collector := monitoring.NewPrometheusCollector()
	callStats := services.NewCallStats()
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	publisher := services.NewCallPublisher(
		callStore,
		callStats,
		collector,
		log,
		cfg.Call.CallsPerMinute,
		cfg.Call.Burst,
	)
	coordinator := services.NewCoordinator(
		cfg.Conference.RoomName,
		self.ID,
		callStore,
		registry,
		layout,
		notifier,
		callStats,
		collector,
		log,
		cfg.Call.NotificationTimeout,
	)

	// Start the store subscription
	subCtx, subCancel := context.WithCancel(context.Background())
	subErr := make(chan error, 1)
	go func() {
		if err := coordinator.Start(subCtx); err != nil && !errors.Is(err, context.Canceled) {
			subErr <- err
		}
	}()

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, registry, cfg.Conference.RoomName)
	callHandler := httphandlers.NewCallHandler(publisher, coordinator, callStats, cfg.Conference.RoomName)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Global concurrency cap (if enabled)
	router.Use(middleware.ConcurrencyLimit(cfg))

	// Public routes, rate limited by source address
	publicLimit := middleware.RateLimit(cfg, middleware.ByClientIP())
	router.POST("/auth/join", publicLimit, authHandler.Join)
	router.GET("/ws/ui", publicLimit, gin.WrapF(hub.HandleWebSocket))

	// Authenticated API, rate limited per participant
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	api.Use(middleware.RateLimit(cfg, middleware.ByParticipant()))
	{
		api.POST("/calls", callHandler.PublishCall)
		api.GET("/calls", callHandler.ListCalls)
		api.GET("/calls/stats", callHandler.CallStats)
		api.POST("/calls/:id/accept", middleware.ModeratorOnly(), callHandler.AcceptCall)
		api.POST("/leave", authHandler.Leave)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"room":      cfg.Conference.RoomName,
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting callwire session agent on %s (room %q)", cfg.Server.Address, cfg.Conference.RoomName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or a fatal error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case err := <-subErr:
		log.Errorw("Call store subscription failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down callwire session agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Delete this session's call records while the store connection is
	// still up; only then tear down subscription and transport.
	coordinator.Cleanup(shutdownCtx)
	subCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("callwire session agent stopped")
}
