package main

import (
	"log"
	"os"
	"time"

	"github.com/artpro/stockpulse/pkg/api"
	"github.com/artpro/stockpulse/pkg/config"
	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/middleware"
	"github.com/artpro/stockpulse/pkg/scheduler"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := middleware.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Sentry")
	}
	defer middleware.FlushSentry()

	// Initialize database
	dbLogLevel := gormlogger.Info
	if cfg.IsProduction() {
		dbLogLevel = gormlogger.Warn
	}
	db, err := database.InitDB(cfg.DatabaseURL, cfg.DatabasePath, dbLogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Promote configured admins
	promoted, err := database.InitializeAdminRoles(db, cfg.AdminEmails)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize admin roles")
	}
	if promoted > 0 {
		logger.Info().Int("count", promoted).Msg("Promoted admin users")
	}

	svc, err := api.NewServices(db, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}

	stop := make(chan struct{})
	defer close(stop)
	go svc.RateLimiter.Run(5*time.Minute, stop)

	// Initialize scheduler if enabled
	if cfg.EnableScheduler {
		if _, err := scheduler.InitScheduler(&scheduler.Jobs{
			Sync:    svc.MarketSync,
			Symbols: svc.Stocks,
			Digests: svc.Notifier,
			Logger:  logger,
		}); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	// Initialize and start API server
	router := api.SetupRouter(cfg, logger, svc)

	logger.Info().Msgf("Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Error().Err(err).Msg("Failed to start server")
	}
}
