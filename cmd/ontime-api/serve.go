package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/ontime-app/backend/internal/config"
	"github.com/ontime-app/backend/internal/handlers"
	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/middleware"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/repository"
	"github.com/ontime-app/backend/internal/scheduler"
	"github.com/ontime-app/backend/internal/service"
	"github.com/ontime-app/backend/pkg/distancematrix"
	"github.com/ontime-app/backend/pkg/supabase"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the HTTP API server and listen for requests.`,
	RunE:  runServe,
}

var (
	port string
)

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if port != "" {
		cfg.Server.Port = port
	}

	log := logger.NewSlogLogger(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	logger.SetDefault(log)

	log.Info("starting OnTime API server",
		logger.String("env", cfg.Server.Env),
		logger.String("supabase_url", cfg.Supabase.URL),
	)

	supabaseClient := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)

	localStore, err := repository.OpenLocalStore(cfg.LocalDB.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer localStore.Close()

	// Repositories
	eventRepo := repository.NewEventRepository(supabaseClient)
	statsRepo := repository.NewStatsRepository(supabaseClient)
	idempotencyRepo := repository.NewIdempotencyRepository(localStore)

	// Travel estimation is optional; without it every resolution answers
	// with the fallback estimate.
	var estimator service.Estimator
	if cfg.Maps.Enabled {
		estimator = distancematrix.NewClient(cfg.Maps.APIKey)
	}

	// Services
	prefs := models.ReminderPreferences{OffsetsMinutes: cfg.Reminders.OffsetsMinutes}
	travelService := service.NewTravelTimeService(estimator, cfg.Maps.Timeout, log)
	notify := service.NewNotificationScheduler(&service.LogSink{Log: log})
	eventStore := service.NewEventStoreService(eventRepo, localStore, travelService, notify, prefs, log)
	rewardService := service.NewRewardService(statsRepo, eventStore, notify, nil, log)
	lockService, err := service.NewLockService(
		localStore,
		eventStore,
		rewardService,
		notify,
		cfg.Lock.ProximityRadiusMeters,
		cfg.Lock.EmergencyPIN,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to build lock service: %w", err)
	}
	eventStore.BindLockService(lockService)

	// Background tick: phase transitions and lock time triggers.
	sched := scheduler.New(eventStore, lockService, notify, prefs, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Handlers
	eventHandler := handlers.NewEventHandler(eventStore, rewardService, notify)
	lockHandler := handlers.NewLockHandler(lockService)
	statsHandler := handlers.NewStatsHandler(rewardService)
	syncHandler := handlers.NewSyncHandler(eventStore, cfg.Sync.HorizonDays, cfg.Sync.ICSFeeds)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimit())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"env":    cfg.Server.Env,
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(supabaseClient, sched))
		protected.Use(middleware.Idempotency(idempotencyRepo))
		{
			// Event routes
			protected.GET("/events/next", eventHandler.GetNextEvent)
			protected.GET("/events/today", eventHandler.GetTodayEvents)
			protected.POST("/events", eventHandler.CreateEvent)
			protected.PATCH("/events/:id", eventHandler.UpdateEvent)
			protected.DELETE("/events/:id", eventHandler.DeleteEvent)
			protected.POST("/events/:id/complete", eventHandler.CompleteEvent)
			protected.GET("/events/:id/reminders", eventHandler.GetReminders)

			// Calendar sync
			protected.POST("/sync/calendar", syncHandler.SyncCalendar)

			// Focus lock routes
			protected.GET("/lock", lockHandler.GetActiveSession)
			protected.POST("/lock/arm", lockHandler.ArmLock)
			protected.POST("/lock/unlock", lockHandler.Unlock)
			protected.POST("/lock/emergency", middleware.RateLimitStrict(), lockHandler.EmergencyUnlock)
			protected.POST("/lock/location", lockHandler.ReportLocation)

			// Stats and rewards
			protected.GET("/stats", statsHandler.GetStats)
			protected.GET("/achievements", statsHandler.GetAchievements)
			protected.GET("/leaderboard", statsHandler.GetLeaderboard)
		}
	}

	log.Info("server listening", logger.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
