// Package testutil holds shared fixtures and assertions for tests across
// the module: sample portfolios, positions and quotes, a canned Gemini
// function-call response, and helpers that check IDs and allocations.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

// SampleUserID is a consistent test user ID.
const SampleUserID = "test-user-123"

// SamplePortfolioData returns the "Tech Growth" create request.
func SamplePortfolioData() models.CreatePortfolioRequest {
	return models.CreatePortfolioRequest{
		Name:         "Tech Growth",
		Description:  "Technology focused growth portfolio",
		StrategyType: string(models.StrategyAggressive),
	}
}

// SamplePositions returns four positions that sum to 100%.
func SamplePositions() []models.PositionInput {
	return []models.PositionInput{
		{Ticker: "AAPL", Allocation: 25.0},
		{Ticker: "MSFT", Allocation: 25.0},
		{Ticker: "GOOGL", Allocation: 25.0},
		{Ticker: "NVDA", Allocation: 25.0},
	}
}

// SampleMarketData returns fixed quotes for the sample tickers.
func SampleMarketData() map[string]market.Quote {
	at := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	return map[string]market.Quote{
		"AAPL":  {Ticker: "AAPL", Price: 175.50, PreviousClose: 173.00, Change: 2.50, ChangePercent: 1.45, Volume: 50000000, Timestamp: at},
		"MSFT":  {Ticker: "MSFT", Price: 350.00, PreviousClose: 351.25, Change: -1.25, ChangePercent: -0.36, Volume: 25000000, Timestamp: at},
		"GOOGL": {Ticker: "GOOGL", Price: 140.25, PreviousClose: 139.50, Change: 0.75, ChangePercent: 0.54, Volume: 30000000, Timestamp: at},
		"NVDA":  {Ticker: "NVDA", Price: 495.00, PreviousClose: 480.00, Change: 15.00, ChangePercent: 3.13, Volume: 40000000, Timestamp: at},
	}
}

// MockGeminiResponse is a generate-content response whose only part is a
// create_portfolio function call.
func MockGeminiResponse() *genai.GenerateContentResponse {
	return FunctionCallResponse("create_portfolio", map[string]any{
		"name":          "AI Generated Portfolio",
		"strategy_type": "moderate",
		"positions": []any{
			map[string]any{"ticker": "AAPL", "allocation": 50.0},
			map[string]any{"ticker": "MSFT", "allocation": 50.0},
		},
	})
}

// FunctionCallResponse wraps a single function call in a response.
func FunctionCallResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}
}

// AssertValidUUID fails the test when value does not parse as a UUID.
func AssertValidUUID(t testing.TB, value string) bool {
	t.Helper()
	if _, err := uuid.Parse(value); err != nil {
		return assert.Fail(t, value+" is not a valid UUID", err.Error())
	}
	return true
}

// AssertAllocationsSumTo100 accepts []models.Position,
// []models.PositionInput or []map[string]any and checks the allocations
// add up to 100 within 0.01.
func AssertAllocationsSumTo100(t testing.TB, positions any) bool {
	t.Helper()

	var total float64
	switch ps := positions.(type) {
	case []models.Position:
		for _, p := range ps {
			total += p.TargetAllocation
		}
	case []models.PositionInput:
		for _, p := range ps {
			total += p.Allocation
		}
	case []map[string]any:
		for _, p := range ps {
			if v, ok := p["allocation"].(float64); ok {
				total += v
			} else if v, ok := p["target_allocation"].(float64); ok {
				total += v
			}
		}
	default:
		return assert.Failf(t, "unsupported positions type", "%T", positions)
	}

	return assert.InDeltaf(t, 100.0, total, 0.01, "Allocations sum to %v%%, expected 100%%", total)
}

// Slow skips long-running tests under -short.
func Slow(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("slow test skipped in short mode")
	}
}
