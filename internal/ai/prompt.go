package ai

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/atharvakonge/portfolio-ai/internal/models"
)

const systemPrompt = `You are a portfolio construction assistant.
Build long-only portfolios of liquid US-listed stocks and ETFs.
Always answer by calling the create_portfolio function exactly once.
Target allocations are percentages and must add up to 100.
Do not include cash, options, leveraged or inverse products.`

// createPortfolioTool declares the create_portfolio function the model
// must call.
func createPortfolioTool(maxPositions int) *genai.Tool {
	strategies := make([]string, 0, len(models.StrategyTypes))
	for _, s := range models.StrategyTypes {
		strategies = append(strategies, string(s))
	}
	frequencies := make([]string, 0, len(models.RebalancingFrequencies))
	for _, f := range models.RebalancingFrequencies {
		frequencies = append(frequencies, string(f))
	}

	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        FunctionName,
			Description: "Create an investment portfolio whose position allocations sum to 100 percent.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name": {
						Type:        genai.TypeString,
						Description: "Short portfolio name, at most 100 characters.",
					},
					"description": {
						Type:        genai.TypeString,
						Description: "One or two sentences explaining the portfolio's thesis.",
					},
					"strategy_type": {
						Type: genai.TypeString,
						Enum: strategies,
					},
					"rebalancing_frequency": {
						Type: genai.TypeString,
						Enum: frequencies,
					},
					"positions": {
						Type:     genai.TypeArray,
						MinItems: genai.Ptr[int64](1),
						MaxItems: genai.Ptr(int64(maxPositions)),
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"ticker": {
									Type:        genai.TypeString,
									Description: "Exchange ticker symbol, e.g. AAPL.",
								},
								"allocation": {
									Type:        genai.TypeNumber,
									Description: "Target allocation in percent.",
									Minimum:     genai.Ptr(0.0),
									Maximum:     genai.Ptr(100.0),
								},
							},
							Required: []string{"ticker", "allocation"},
						},
					},
				},
				Required: []string{"name", "strategy_type", "positions"},
			},
		}},
	}
}

func buildPrompt(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Create a portfolio for this goal: %s\n", req.Goal)
	if req.StrategyType != "" {
		fmt.Fprintf(&sb, "Strategy type: %s\n", req.StrategyType)
	} else {
		sb.WriteString("Choose the strategy type that best fits the goal.\n")
	}
	fmt.Fprintf(&sb, "Use at most %d positions.\n", req.MaxPositions)

	if len(req.PreferredTickers) > 0 {
		fmt.Fprintf(&sb, "Prefer these tickers where they fit: %s\n", strings.Join(req.PreferredTickers, ", "))
	}
	if len(req.ExcludedTickers) > 0 {
		fmt.Fprintf(&sb, "Never include: %s\n", strings.Join(req.ExcludedTickers, ", "))
	}

	return sb.String()
}
