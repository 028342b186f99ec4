package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/auth"
	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/middleware"
)

var errNoRoute = apperrors.NotFound("route not found")

// RouterDeps collects what NewRouter mounts. Verifier and GenerateLimiter
// are optional.
type RouterDeps struct {
	Portfolios      PortfolioService
	Quotes          market.Provider
	Prices          *PriceStream
	DB              Pinger
	Verifier        *auth.Verifier
	GenerateLimiter *middleware.RateLimiter
	Logger          *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(logger), gin.Recovery())

	router.GET("/health", Health(d.DB))

	api := router.Group("/api", middleware.Authenticate(d.Verifier))
	{
		var limit gin.HandlerFunc
		if d.GenerateLimiter != nil {
			limit = middleware.RateLimit(d.GenerateLimiter)
		}
		NewPortfolioHandler(d.Portfolios).Register(api, limit)

		api.GET("/market/quotes", NewMarketHandler(d.Quotes).Quotes)
	}

	// WebSocket endpoint
	if d.Prices != nil {
		router.GET("/ws/prices", d.Prices.Handle)
	}

	router.NoRoute(func(c *gin.Context) {
		middleware.WriteError(c, errNoRoute)
	})

	return router
}
