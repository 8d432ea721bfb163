package api

import (
	"errors"
	"strings"

	"github.com/artpro/stockpulse/pkg/api/handlers"
	"github.com/artpro/stockpulse/pkg/auth"
	"github.com/artpro/stockpulse/pkg/config"
	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/middleware"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/artpro/stockpulse/pkg/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Services bundles the long-lived components shared by the router and the scheduler
type Services struct {
	DB          *gorm.DB
	Verifier    auth.TokenVerifier
	Provider    *services.AlphaVantageClient
	MarketSync  *services.MarketSync
	Reconciler  *services.IdentityReconciler
	Preferences *services.PreferencesService
	Notifier    *services.Notifier
	Stocks      *database.StockRepository
	RateLimiter *middleware.RateLimiter
}

// NewServices wires the services from configuration
func NewServices(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	var verifier auth.TokenVerifier
	jwtVerifier, err := auth.NewJWTVerifier(cfg.IdentityJWTSecret, cfg.IdentityJWTPublicKey, cfg.IdentityIssuer)
	switch {
	case err == nil:
		verifier = jwtVerifier
	case errors.Is(err, auth.ErrVerifierNotConfigured):
		logger.Warn().Msg("No identity verification key configured, protected routes will reject every request")
		verifier = auth.DisabledVerifier{}
	default:
		return nil, err
	}

	provider := services.NewAlphaVantageClient(cfg.AlphaVantageAPIKey,
		services.WithBaseURL(cfg.AlphaVantageBaseURL),
		services.WithRatePerMinute(cfg.AlphaVantageRatePerMinute),
		services.WithTimeout(cfg.ProviderTimeout),
		services.WithLogger(logger),
	)
	stocks := database.NewStockRepository(db)

	return &Services{
		DB:          db,
		Verifier:    verifier,
		Provider:    provider,
		MarketSync:  services.NewMarketSync(provider, stocks, logger, cfg.ProviderTimeout),
		Reconciler:  services.NewIdentityReconciler(database.NewUserRepository(db), logger),
		Preferences: services.NewPreferencesService(db, cfg.AdminEmails, logger),
		Notifier:    services.NewNotifier(db, cfg.SendGridAPIKey, cfg.DigestEmailFrom, logger),
		Stocks:      stocks,
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, nil
}

// SetupRouter sets up the Gin router with all routes and middleware
func SetupRouter(cfg *config.Config, logger zerolog.Logger, svc *Services) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
	)

	// CORS configuration
	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// Allow localhost for development
			if origin == "http://localhost:3000" || origin == "http://localhost:3001" {
				return true
			}
			// Allow configured frontend URL
			if origin == cfg.FrontendURL {
				return true
			}
			// Allow any vercel.app subdomain
			return strings.HasSuffix(origin, ".vercel.app")
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, handlers.DataSourceHeader},
		AllowCredentials: true,
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.RateLimitMiddleware(svc.RateLimiter, logger))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(logger)
	userHandler := handlers.NewUserHandler(svc.DB, svc.Preferences, logger)
	preferencesHandler := handlers.NewPreferencesHandler(svc.Preferences, logger)
	stockHandler := handlers.NewStockHandler(svc.DB, svc.MarketSync, svc.Provider, logger)
	watchlistHandler := handlers.NewWatchlistHandler(svc.DB, logger)
	portfolioHandler := handlers.NewPortfolioHandler(svc.DB, svc.Preferences, logger)

	// Public routes
	public := router.Group("/api")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})

		// Stock routes
		public.GET("/stocks", stockHandler.GetAllStocks)
		public.GET("/stocks/:symbol", stockHandler.GetStock)
		public.GET("/stocks/:symbol/history", stockHandler.GetStockHistory)
		public.GET("/market/summary", stockHandler.GetMarketSummary)
		public.GET("/market/search", stockHandler.SearchStocks)
	}

	// Protected routes
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(svc.Verifier, svc.Reconciler, svc.Preferences, logger))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		// User routes
		protected.GET("/users/profile", userHandler.GetProfile)
		protected.PUT("/users/profile", userHandler.UpdateProfile)
		protected.GET("/users", middleware.RequireRole(models.RoleAdmin), userHandler.ListUsers)
		protected.GET("/users/:id", middleware.RequireRole(models.RoleAdmin), userHandler.GetUser)

		// Preferences routes
		protected.GET("/preferences", preferencesHandler.GetPreferences)
		protected.PUT("/preferences", preferencesHandler.UpdatePreferences)
		protected.PUT("/preferences/:userId/role", middleware.RequireRole(models.RoleAdmin), preferencesHandler.UpdateRole)

		// Watchlist routes
		protected.GET("/watchlists", watchlistHandler.GetWatchlist)
		protected.POST("/watchlists", watchlistHandler.AddItem)
		protected.GET("/watchlists/:id", watchlistHandler.GetItem)
		protected.DELETE("/watchlists/:id", watchlistHandler.DeleteItem)

		// Portfolio routes
		protected.GET("/portfolios", portfolioHandler.GetPortfolio)
		protected.POST("/portfolios", portfolioHandler.CreateItem)
		protected.GET("/portfolios/summary", portfolioHandler.GetPortfolioSummary)
		protected.GET("/portfolios/:id", portfolioHandler.GetItem)
		protected.PUT("/portfolios/:id", portfolioHandler.UpdateItem)
		protected.DELETE("/portfolios/:id", portfolioHandler.DeleteItem)
	}

	return router
}
