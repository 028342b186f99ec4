package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/middleware"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

const maxQuoteTickers = 50

type MarketHandler struct {
	quotes market.Provider
}

func NewMarketHandler(quotes market.Provider) *MarketHandler {
	return &MarketHandler{quotes: quotes}
}

// Quotes handles GET /api/market/quotes?tickers=AAPL,MSFT
func (h *MarketHandler) Quotes(c *gin.Context) {
	tickers, err := parseTickers(c.Query("tickers"))
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	byTicker, err := h.quotes.Quotes(c.Request.Context(), tickers)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	out := make([]market.Quote, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, byTicker[t])
	}
	c.JSON(http.StatusOK, gin.H{"quotes": out})
}

// parseTickers splits a comma separated list, normalising and
// de-duplicating while keeping the caller's order.
func parseTickers(raw string) ([]string, error) {
	var tickers []string
	seen := map[string]bool{}
	var invalid []string
	for _, part := range strings.Split(raw, ",") {
		t := models.NormalizeTicker(part)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if !models.ValidTicker(t) {
			invalid = append(invalid, t)
			continue
		}
		tickers = append(tickers, t)
	}

	switch {
	case len(invalid) > 0:
		sort.Strings(invalid)
		return nil, apperrors.Validation("invalid tickers", map[string]string{"tickers": "invalid: " + strings.Join(invalid, ", ")})
	case len(tickers) == 0:
		return nil, apperrors.Validation("tickers is required", map[string]string{"tickers": "is required"})
	case len(tickers) > maxQuoteTickers:
		return nil, apperrors.Validation("too many tickers", map[string]string{"tickers": "at most 50 tickers per request"})
	}
	return tickers, nil
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health handles GET /health
func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "ok"})
	}
}
