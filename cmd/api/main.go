package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/portfolio-ai/internal/ai"
	"github.com/atharvakonge/portfolio-ai/internal/auth"
	"github.com/atharvakonge/portfolio-ai/internal/config"
	"github.com/atharvakonge/portfolio-ai/internal/db"
	"github.com/atharvakonge/portfolio-ai/internal/events"
	"github.com/atharvakonge/portfolio-ai/internal/handlers"
	"github.com/atharvakonge/portfolio-ai/internal/logger"
	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/middleware"
	"github.com/atharvakonge/portfolio-ai/internal/portfolio"
	"github.com/atharvakonge/portfolio-ai/internal/repository"
)

func main() {
	// Load .env file and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	database, err := db.Open(ctx, db.Options{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		logg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		logg.Fatal("failed to migrate database", zap.Error(err))
	}

	// Market data
	sim := market.NewSimulatedProvider(market.DefaultQuotes(), nil)
	quotes, err := market.NewCachedProvider(sim, cfg.QuoteCacheTTL)
	if err != nil {
		logg.Fatal("failed to create quote cache", zap.Error(err))
	}
	defer quotes.Close()

	// Events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventsEnabled() {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logg)
		logg.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logg.Warn("failed to close event publisher", zap.Error(err))
		}
	}()

	// AI generation: a nil Generator makes the generate endpoint report 503.
	var generator portfolio.Generator
	if cfg.AIEnabled() {
		gen, err := ai.NewGeminiGenerator(ctx, cfg.GeminiAPIKey,
			ai.WithModel(cfg.GeminiModel),
			ai.WithTimeout(cfg.AITimeout),
			ai.WithLogger(logg),
		)
		if err != nil {
			logg.Fatal("failed to create Gemini client", zap.Error(err))
		}
		pool := ai.NewPool(gen, cfg.AIWorkers, cfg.AIQueueSize, logg)
		pool.Start()
		defer pool.Stop()
		generator = pool
	} else {
		logg.Warn("GEMINI_API_KEY not set, portfolio generation disabled")
	}

	svc := portfolio.NewService(repository.NewPortfolioRepository(database), quotes, generator, publisher, logg)

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	} else {
		logg.Warn("JWT_SECRET not set, trusting the " + middleware.UserIDHeader + " header")
	}

	limiter := middleware.NewRateLimiter(cfg.AIRatePerSec, cfg.AIRateBurst)
	go limiter.Run(ctx.Done())

	gin.SetMode(cfg.GinMode)
	router := handlers.NewRouter(handlers.RouterDeps{
		Portfolios:      svc,
		Quotes:          quotes,
		Prices:          handlers.NewPriceStream(sim, sim.Tickers, cfg.PriceInterval, ctx.Done(), logg),
		DB:              database,
		Verifier:        verifier,
		GenerateLimiter: limiter,
		Logger:          logg,
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logg.Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server failed", zap.Error(err))
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("server shutdown", zap.Error(err))
	}
	logg.Info("shutdown complete")
}
