package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/api"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/api/handlers"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/api/middleware"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/providers"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/config"
	"github.com/rugbyfantasy/sixnations-optimizer/pkg/database"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize services
	cacheService := services.NewCacheService(redisClient)
	webSocketHub := services.NewWebSocketHub()
	go webSocketHub.Run()

	// Initialize the stats provider
	statsClient := providers.NewSixNationsClient(providers.StatsConfig{
		BaseURL:   cfg.StatsAPIURL,
		Token:     cfg.StatsAPIToken,
		AccessKey: cfg.StatsAccessKey,
		PageSize:  cfg.StatsPageSize,
		RateLimit: time.Duration(cfg.StatsRateLimitSecs) * time.Second,
		Timeout:   cfg.ExternalAPITimeout,
	}, cacheService, logrus.StandardLogger())

	rosterService := services.NewRosterService(db, cacheService, statsClient, webSocketHub, logrus.StandardLogger())

	// Pick the SMS notifier
	var notifier services.Notifier
	switch cfg.SMSProvider {
	case "twilio":
		smsRateLimiter := services.NewSMSRateLimiter(3, 30*time.Minute)
		notifier = services.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken,
			cfg.TwilioFromNumber, smsRateLimiter, logrus.StandardLogger())
	default:
		notifier = services.NewMockNotifier(logrus.StandardLogger())
	}

	// Parse fetch interval
	fetchInterval, err := time.ParseDuration(cfg.DataFetchInterval)
	if err != nil {
		logrus.Warnf("Invalid fetch interval, using default 6h: %v", err)
		fetchInterval = 6 * time.Hour
	}

	// Initialize the background scheduler
	scheduler := services.NewSchedulerService(db, cacheService, rosterService, notifier, webSocketHub,
		logrus.StandardLogger(), services.SchedulerOptions{
			FetchInterval:   fetchInterval,
			CurrentRound:    cfg.CurrentRound,
			ClubCap:         cfg.ClubCap,
			ReminderCron:    cfg.DeadlineReminderCron,
			NotifyPhone:     cfg.NotifyPhoneNumber,
			SkipInitialSync: cfg.SkipInitialDataFetch,
		})
	if cfg.EnableBackgroundJobs {
		if err := scheduler.Start(); err != nil {
			logrus.Errorf("Failed to start scheduler: %v", err)
		}
		defer scheduler.Stop()
	} else {
		logrus.Info("Background jobs disabled")
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logrus.StandardLogger()))
	router.Use(middleware.CORS(cfg.CorsOrigins))

	// Health check endpoints
	healthHandler := handlers.NewHealthHandler(db, redisClient, webSocketHub)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	// Setup API routes under /api/v1
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, db, cacheService, webSocketHub, cfg, rosterService, scheduler)

	// Setup WebSocket endpoint at root level (not under /api/v1)
	wsHandler := handlers.NewWebSocketHandler(webSocketHub)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// Log all registered routes
	logrus.Info("=== REGISTERED ROUTES ===")
	for _, route := range router.Routes() {
		logrus.Infof("%s %s", route.Method, route.Path)
	}
	logrus.Info("=========================")

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logrus.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
