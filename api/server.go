// Package api exposes the journal over HTTP and upgrades streaming clients.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/internal/identities"
	"github.com/quantjournal/tradelog/internal/journal"
	"github.com/quantjournal/tradelog/internal/quotes"
	"github.com/quantjournal/tradelog/internal/stream"
)

// Server represents the API server
type Server struct {
	router     *gin.Engine
	logger     *zap.Logger
	identities identities.IdentityService
	journal    journal.JournalService
	oracle     quotes.Oracle
	converter  *quotes.Converter
	ws         *stream.Handler
}

// NewServer creates a new API server with injected services.
func NewServer(
	logger *zap.Logger,
	identitiesSvc identities.IdentityService,
	journalSvc journal.JournalService,
	oracle quotes.Oracle,
	converter *quotes.Converter,
	ws *stream.Handler,
	allowedOrigins []string,
	rateLimit string,
) *Server {
	server := &Server{
		logger:     logger,
		identities: identitiesSvc,
		journal:    journalSvc,
		oracle:     oracle,
		converter:  converter,
		ws:         ws,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Per-IP rate limiter, e.g. "100-M" for 100 requests per minute.
	if rate, err := limiter.NewRateFromFormatted(rateLimit); err == nil {
		store := memory.NewStore()
		router.Use(ginlimiter.NewMiddleware(limiter.New(store, rate)))
	} else {
		logger.Warn("invalid rate limit format, limiter disabled", zap.String("rate", rateLimit))
	}

	server.router = router
	server.registerRoutes()
	return server
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/health", s.healthCheck)
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))

		auth := public.Group("/auth")
		{
			auth.POST("/register", s.register)
			auth.POST("/login", s.login)
		}
	}

	protected := s.router.Group("/api/v1")
	protected.Use(s.authMiddleware())
	{
		protected.GET("/auth/me", s.me)

		trades := protected.Group("/trades")
		{
			trades.POST("", s.createTrade)
			trades.GET("/open", s.openTrades)
			trades.GET("/closed", s.closedTrades)
			trades.PUT("/:id/close", s.closeTrade)
		}

		setups := protected.Group("/setups")
		{
			setups.POST("", s.createSetup)
			setups.GET("", s.listSetups)
		}

		protected.GET("/stats", s.stats)
		protected.GET("/quotes/:ticker", s.getQuote)
	}

	// Streaming endpoint, keyed by user_id in the URL per the client
	// protocol.
	s.router.GET("/ws/:user_id", func(c *gin.Context) {
		s.ws.ServeWS(c.Writer, c.Request, c.Param("user_id"))
	})
}
