package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/api"
	"github.com/quantjournal/tradelog/internal/alerts"
	"github.com/quantjournal/tradelog/internal/config"
	"github.com/quantjournal/tradelog/internal/database"
	"github.com/quantjournal/tradelog/internal/feed"
	"github.com/quantjournal/tradelog/internal/identities"
	"github.com/quantjournal/tradelog/internal/journal"
	"github.com/quantjournal/tradelog/internal/quotes"
	"github.com/quantjournal/tradelog/internal/stream"
	"github.com/quantjournal/tradelog/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Prices go over the wire as JSON numbers, matching the client protocol.
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Connect to the database
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Quote cache: redis when configured, in-process otherwise
	var quoteCache quotes.Cache = quotes.NewMemoryCache()
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		quoteCache = quotes.NewRedisCache(redisClient)
		defer redisClient.Close()
	}

	// Create services
	identitiesSvc, err := identities.NewService(zapLogger, db, cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	if err != nil {
		zapLogger.Fatal("Failed to create identities service", zap.Error(err))
	}

	journalSvc, err := journal.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create journal service", zap.Error(err))
	}

	var oracle quotes.Oracle
	if cfg.Quotes.UseMock {
		zapLogger.Info("Price oracle running in mock mode")
		oracle = quotes.NewMockOracle()
	} else {
		oracle = quotes.NewService(zapLogger, cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey,
			quoteCache, cfg.Quotes.CacheTTL, cfg.Quotes.SearchCacheTTL, cfg.Quotes.RatePerMinute)
	}
	converter := quotes.NewConverter(zapLogger)

	// Wire the live price subsystem: registry -> feed adapter -> dispatcher
	// -> broadcaster + alert evaluator
	registry := stream.NewRegistry(zapLogger)
	adapter := feed.NewAdapter(zapLogger, cfg.Finnhub.WSURL, cfg.Finnhub.APIKey,
		registry, cfg.Feed.BackoffMin, cfg.Feed.BackoffMax, cfg.Feed.BufferSize)
	broadcaster := stream.NewBroadcaster(registry, zapLogger)
	evaluator := alerts.NewEvaluator(journalSvc, registry, broadcaster, zapLogger)
	dispatcher := stream.NewDispatcher(adapter.Events(), broadcaster, evaluator, zapLogger)
	wsHandler := stream.NewHandler(registry, adapter.Reconcile, zapLogger)

	apiServer := api.NewServer(zapLogger, identitiesSvc, journalSvc, oracle, converter,
		wsHandler, cfg.Server.AllowedOrigins, cfg.Server.RateLimit)

	// Start services
	if err := identitiesSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start identities service", zap.Error(err))
	}
	if err := journalSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start journal service", zap.Error(err))
	}
	dispatcher.Start()
	if err := adapter.Start(context.Background()); err != nil {
		zapLogger.Fatal("Failed to start feed adapter", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := apiServer.Start(addr); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	if err := adapter.Stop(); err != nil {
		zapLogger.Error("Failed to stop feed adapter", zap.Error(err))
	}
	dispatcher.Stop()
	if err := journalSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop journal service", zap.Error(err))
	}
	if err := identitiesSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop identities service", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}
