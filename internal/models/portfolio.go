package models

import (
	"fmt"
	"strings"
	"time"
)

// StrategyType classifies a portfolio's risk appetite.
type StrategyType string

const (
	StrategyConservative StrategyType = "conservative"
	StrategyModerate     StrategyType = "moderate"
	StrategyAggressive   StrategyType = "aggressive"
)

// StrategyTypes lists every accepted strategy in ascending risk order.
var StrategyTypes = []StrategyType{StrategyConservative, StrategyModerate, StrategyAggressive}

func (s StrategyType) String() string { return string(s) }

func (s StrategyType) Valid() bool {
	switch s {
	case StrategyConservative, StrategyModerate, StrategyAggressive:
		return true
	default:
		return false
	}
}

// ParseStrategyType accepts any case and surrounding whitespace.
func ParseStrategyType(raw string) (StrategyType, error) {
	s := StrategyType(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid strategy type %q", raw)
	}
	return s, nil
}

// RebalancingFrequency is optional; the zero value means "never".
type RebalancingFrequency string

const (
	RebalanceNone      RebalancingFrequency = ""
	RebalanceDaily     RebalancingFrequency = "daily"
	RebalanceWeekly    RebalancingFrequency = "weekly"
	RebalanceMonthly   RebalancingFrequency = "monthly"
	RebalanceQuarterly RebalancingFrequency = "quarterly"
	RebalanceAnnually  RebalancingFrequency = "annually"
)

var RebalancingFrequencies = []RebalancingFrequency{
	RebalanceDaily, RebalanceWeekly, RebalanceMonthly, RebalanceQuarterly, RebalanceAnnually,
}

func (f RebalancingFrequency) Valid() bool {
	switch f {
	case RebalanceNone, RebalanceDaily, RebalanceWeekly, RebalanceMonthly, RebalanceQuarterly, RebalanceAnnually:
		return true
	default:
		return false
	}
}

func ParseRebalancingFrequency(raw string) (RebalancingFrequency, error) {
	f := RebalancingFrequency(strings.ToLower(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", fmt.Errorf("invalid rebalancing frequency %q", raw)
	}
	return f, nil
}

// Portfolio is a named set of target allocations owned by one user.
type Portfolio struct {
	ID                   string               `json:"id"`
	UserID               string               `json:"user_id"`
	Name                 string               `json:"name"`
	Description          string               `json:"description,omitempty"`
	StrategyType         StrategyType         `json:"strategy_type"`
	RebalancingFrequency RebalancingFrequency `json:"rebalancing_frequency,omitempty"`
	Positions            []Position           `json:"positions"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Position is one ticker's target allocation (percent) in a portfolio.
type Position struct {
	ID               string    `json:"id"`
	PortfolioID      string    `json:"portfolio_id"`
	TickerSymbol     string    `json:"ticker_symbol"`
	TargetAllocation float64   `json:"target_allocation"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PositionInput is the client-facing shape of a position.
type PositionInput struct {
	Ticker     string  `json:"ticker" mapstructure:"ticker"`
	Allocation float64 `json:"allocation" mapstructure:"allocation"`
}

// CreatePortfolioRequest - what the client sends to create a portfolio
type CreatePortfolioRequest struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	StrategyType         string          `json:"strategy_type"`
	RebalancingFrequency string          `json:"rebalancing_frequency"`
	Positions            []PositionInput `json:"positions"`
}

// UpdatePortfolioRequest is a partial update; nil fields are unchanged.
type UpdatePortfolioRequest struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	StrategyType         *string `json:"strategy_type"`
	RebalancingFrequency *string `json:"rebalancing_frequency"`
}

type SetPositionsRequest struct {
	Positions []PositionInput `json:"positions"`
}

type AllocateRequest struct {
	Amount float64 `json:"amount"`
}

// GenerateRequest asks the AI generator for a portfolio draft.
type GenerateRequest struct {
	Goal             string   `json:"goal"`
	StrategyType     string   `json:"strategy_type"`
	MaxPositions     int      `json:"max_positions"`
	PreferredTickers []string `json:"preferred_tickers"`
	ExcludedTickers  []string `json:"excluded_tickers"`
	Save             *bool    `json:"save"`
}

// AllocationLine is one position's share of an allocation plan.
type AllocationLine struct {
	Ticker           string  `json:"ticker"`
	TargetAllocation float64 `json:"target_allocation"`
	Price            float64 `json:"price"`
	Amount           float64 `json:"amount"`
	Shares           int64   `json:"shares"`
	Invested         float64 `json:"invested"`
}

// AllocationPlan - what we send back for POST /allocate
type AllocationPlan struct {
	PortfolioID string           `json:"portfolio_id"`
	Amount      float64          `json:"amount"`
	Lines       []AllocationLine `json:"lines"`
	Invested    float64          `json:"invested"`
	Cash        float64          `json:"cash"`
}

// ToPositions converts client inputs to positions with normalised tickers
// and allocations rounded to the stored precision.
func ToPositions(inputs []PositionInput) []Position {
	out := make([]Position, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, Position{
			TickerSymbol:     NormalizeTicker(in.Ticker),
			TargetAllocation: RoundAllocation(in.Allocation),
		})
	}
	return out
}
