package handler

import (
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"github.com/artpro/stockpulse/pkg/api"
	"github.com/artpro/stockpulse/pkg/config"
	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/middleware"
)

var (
	router  *gin.Engine
	logger  zerolog.Logger
	once    sync.Once
	initErr error
)

// Initialize the application once
func initialize() {
	once.Do(func() {
		// Set Gin to release mode for production
		gin.SetMode(gin.ReleaseMode)

		// Initialize logger
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

		// Load configuration
		cfg, err := config.Load()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load configuration")
			initErr = err
			return
		}

		if err := middleware.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Sentry")
		}

		// Initialize database
		db, err := database.InitDB(cfg.DatabaseURL, cfg.DatabasePath, gormlogger.Warn)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize database")
			initErr = err
			return
		}

		// Promote configured admins
		if _, err := database.InitializeAdminRoles(db, cfg.AdminEmails); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize admin roles")
		}

		svc, err := api.NewServices(db, cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize services")
			initErr = err
			return
		}

		// Note: Scheduler and limiter cleanup are disabled in serverless environment
		logger.Info().Msg("Running in serverless mode - scheduler disabled")

		// Setup router
		router = api.SetupRouter(cfg, logger, svc)

		logger.Info().Msg("Serverless function initialized successfully")
	})
}

// Handler is the entry point for Vercel serverless function
func Handler(w http.ResponseWriter, r *http.Request) {
	// Initialize on first request
	initialize()

	// Check if initialization failed
	if initErr != nil {
		log.Printf("Initialization error: %v", initErr)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Serve the request
	router.ServeHTTP(w, r)
	middleware.FlushSentry()
}
