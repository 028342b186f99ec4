// Package ai generates portfolio drafts with Gemini function calling.
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

const (
	DefaultModel        = "gemini-2.5-flash"
	DefaultTimeout      = 60 * time.Second
	DefaultMaxPositions = 8
	MaxPositions        = 20
	FunctionName        = "create_portfolio"
	fallbackName        = "AI Generated Portfolio"
)

// ContentGenerator matches (*genai.Models).GenerateContent.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Request describes the portfolio the caller wants.
type Request struct {
	Goal             string
	StrategyType     models.StrategyType // empty lets the model choose
	MaxPositions     int
	PreferredTickers []string
	ExcludedTickers  []string
}

// Draft is a validated, unsaved portfolio proposal.
type Draft struct {
	Name                 string
	Description          string
	StrategyType         models.StrategyType
	RebalancingFrequency models.RebalancingFrequency
	Positions            []models.Position
}

type Generator struct {
	client  ContentGenerator
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Generator)

func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func NewGenerator(client ContentGenerator, opts ...Option) *Generator {
	g := &Generator{
		client:  client,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGeminiGenerator builds a Generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewGenerator(client.Models, opts...), nil
}

// Generate asks the model for a portfolio and returns it with tickers
// normalised and allocations rescaled to sum to exactly 100.
func (g *Generator) Generate(ctx context.Context, req Request) (*Draft, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Tools:             []*genai.Tool{createPortfolioTool(req.MaxPositions)},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{FunctionName},
			},
		},
		Temperature: genai.Ptr[float32](0.4),
	}

	start := time.Now()
	g.logger.Debug("generating portfolio", zap.String("model", g.model), zap.Int("max_positions", req.MaxPositions))

	resp, err := g.client.GenerateContent(ctx, g.model, genai.Text(buildPrompt(req)), config)
	if err != nil {
		return nil, apperrors.External("portfolio generation failed", err)
	}

	args, err := extractFunctionCall(resp)
	if err != nil {
		return nil, err
	}

	draft, err := buildDraft(args, req)
	if err != nil {
		return nil, err
	}

	g.logger.Info("portfolio generated",
		zap.String("model", g.model),
		zap.String("strategy_type", string(draft.StrategyType)),
		zap.Int("positions", len(draft.Positions)),
		zap.Duration("latency", time.Since(start)),
	)
	return draft, nil
}

type createPortfolioArgs struct {
	Name                 string                 `mapstructure:"name"`
	Description          string                 `mapstructure:"description"`
	StrategyType         string                 `mapstructure:"strategy_type"`
	RebalancingFrequency string                 `mapstructure:"rebalancing_frequency"`
	Positions            []models.PositionInput `mapstructure:"positions"`
}

func extractFunctionCall(resp *genai.GenerateContentResponse) (*createPortfolioArgs, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, apperrors.External("model returned no candidates", nil)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.FunctionCall == nil || part.FunctionCall.Name != FunctionName {
			continue
		}

		var args createPortfolioArgs
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &args,
		})
		if err != nil {
			return nil, apperrors.Internal("build args decoder", err)
		}
		if err := decoder.Decode(part.FunctionCall.Args); err != nil {
			return nil, apperrors.External("model returned malformed create_portfolio arguments", err)
		}
		return &args, nil
	}

	return nil, apperrors.External("model did not call "+FunctionName, nil)
}

func normalizeRequest(req Request) (Request, error) {
	req.Goal = strings.TrimSpace(req.Goal)
	if req.Goal == "" {
		return req, apperrors.Validation("invalid generation request", map[string]string{"goal": "is required"})
	}
	if req.StrategyType != "" && !req.StrategyType.Valid() {
		return req, apperrors.Validation("invalid generation request", map[string]string{
			"strategy_type": "must be one of: conservative, moderate, aggressive",
		})
	}

	switch {
	case req.MaxPositions <= 0:
		req.MaxPositions = DefaultMaxPositions
	case req.MaxPositions > MaxPositions:
		req.MaxPositions = MaxPositions
	}

	req.PreferredTickers = normalizeTickers(req.PreferredTickers)
	req.ExcludedTickers = normalizeTickers(req.ExcludedTickers)
	return req, nil
}

func normalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = models.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func buildDraft(args *createPortfolioArgs, req Request) (*Draft, error) {
	draft := &Draft{
		Name:        strings.TrimSpace(args.Name),
		Description: strings.TrimSpace(args.Description),
	}
	if draft.Name == "" {
		draft.Name = fallbackName
	}
	draft.Name = strings.TrimSpace(truncateRunes(draft.Name, models.MaxNameLength))
	draft.Description = truncateRunes(draft.Description, models.MaxDescriptionLength)

	// An explicit strategy in the request wins over the model's choice.
	if req.StrategyType != "" {
		draft.StrategyType = req.StrategyType
	} else {
		s, err := models.ParseStrategyType(args.StrategyType)
		if err != nil {
			return nil, apperrors.External("model returned an invalid strategy type", err)
		}
		draft.StrategyType = s
	}

	if f, err := models.ParseRebalancingFrequency(args.RebalancingFrequency); err == nil {
		draft.RebalancingFrequency = f
	}

	positions, err := normalizePositions(args.Positions, req)
	if err != nil {
		return nil, err
	}
	draft.Positions = positions

	if err := models.ValidatePositions(draft.Positions); err != nil {
		return nil, apperrors.External("model returned invalid positions", err)
	}
	return draft, nil
}

// truncateRunes cuts s to at most n characters without splitting one.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// normalizePositions drops unusable entries, merges duplicate tickers,
// keeps the largest MaxPositions and rescales allocations to 100 with
// two decimals. Positions whose share rounds to zero are dropped and the
// rest rescaled again; the largest position absorbs the rounding
// remainder.
func normalizePositions(in []models.PositionInput, req Request) ([]models.Position, error) {
	excluded := make(map[string]bool, len(req.ExcludedTickers))
	for _, t := range req.ExcludedTickers {
		excluded[t] = true
	}

	merged := make(map[string]decimal.Decimal, len(in))
	var order []string
	for _, p := range in {
		ticker := models.NormalizeTicker(p.Ticker)
		if !models.ValidTicker(ticker) || excluded[ticker] || p.Allocation <= 0 {
			continue
		}
		if _, ok := merged[ticker]; !ok {
			order = append(order, ticker)
		}
		merged[ticker] = merged[ticker].Add(decimal.NewFromFloat(p.Allocation))
	}
	if len(order) == 0 {
		return nil, apperrors.External("model returned no usable positions", nil)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return merged[order[i]].GreaterThan(merged[order[j]])
	})
	if len(order) > req.MaxPositions {
		order = order[:req.MaxPositions]
	}

	hundred := decimal.NewFromInt(100)
	var shares []decimal.Decimal
	for {
		total := decimal.Zero
		for _, t := range order {
			total = total.Add(merged[t])
		}

		shares = make([]decimal.Decimal, 0, len(order))
		kept := order[:0:0]
		for _, t := range order {
			share := merged[t].Div(total).Mul(hundred).Round(2)
			if share.IsPositive() {
				kept = append(kept, t)
				shares = append(shares, share)
			}
		}
		if len(kept) == len(order) {
			break
		}
		// order is sorted descending, so the largest always survives.
		order = kept
	}

	sum := decimal.Zero
	for _, share := range shares {
		sum = sum.Add(share)
	}
	shares[0] = shares[0].Add(hundred.Sub(sum))

	out := make([]models.Position, 0, len(order))
	for i, t := range order {
		out = append(out, models.Position{
			TickerSymbol:     t,
			TargetAllocation: shares[i].InexactFloat64(),
		})
	}
	return out, nil
}
