// Package portfolio implements portfolio use cases on top of the
// repository, quote provider, AI generator and event publisher.
package portfolio

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atharvakonge/portfolio-ai/internal/ai"
	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/events"
	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

// Repository is implemented by *repository.PortfolioRepository.
type Repository interface {
	Create(ctx context.Context, p *models.Portfolio) error
	Get(ctx context.Context, id string) (*models.Portfolio, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Portfolio, error)
	Update(ctx context.Context, p *models.Portfolio) error
	ReplacePositions(ctx context.Context, p *models.Portfolio) error
	Delete(ctx context.Context, id string) error
}

// Generator is implemented by *ai.Pool.
type Generator interface {
	Submit(ctx context.Context, req ai.Request) (*ai.Draft, error)
}

type Service struct {
	repo      Repository
	quotes    market.Provider
	generator Generator
	events    events.Publisher
	locker    *models.UserLocker
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the service. generator may be nil when no AI backend
// is configured; Generate then reports the feature as unavailable.
func NewService(repo Repository, quotes market.Provider, generator Generator, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		quotes:    quotes,
		generator: generator,
		events:    publisher,
		locker:    models.NewUserLocker(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Create(ctx context.Context, userID string, req models.CreatePortfolioRequest) (*models.Portfolio, error) {
	p := &models.Portfolio{
		UserID:               userID,
		Name:                 req.Name,
		Description:          strings.TrimSpace(req.Description),
		StrategyType:         parseStrategy(req.StrategyType),
		RebalancingFrequency: parseFrequency(req.RebalancingFrequency),
		Positions:            models.ToPositions(req.Positions),
	}
	if err := models.ValidatePortfolio(p); err != nil {
		return nil, err
	}

	err := s.locker.WithLock(userID, func() error {
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("portfolio created",
		zap.String("portfolio_id", p.ID),
		zap.String("user_id", userID),
		zap.Int("positions", len(p.Positions)),
	)
	s.publish(ctx, events.PortfolioCreated, p, nil)
	return p, nil
}

// Get returns the portfolio when userID owns it; other users' portfolios
// are reported as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.Portfolio, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperrors.NotFound("portfolio %s not found", id)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]models.Portfolio, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Update applies the non-nil fields of req.
func (s *Service) Update(ctx context.Context, userID, id string, req models.UpdatePortfolioRequest) (*models.Portfolio, error) {
	var p *models.Portfolio
	err := s.locker.WithLock(userID, func() error {
		var err error
		p, err = s.Get(ctx, userID, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if req.StrategyType != nil {
			p.StrategyType = parseStrategy(*req.StrategyType)
		}
		if req.RebalancingFrequency != nil {
			p.RebalancingFrequency = parseFrequency(*req.RebalancingFrequency)
		}
		if err := models.ValidatePortfolio(p); err != nil {
			return err
		}

		return s.repo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.PortfolioUpdated, p, nil)
	return p, nil
}

// SetPositions replaces every position of the portfolio.
func (s *Service) SetPositions(ctx context.Context, userID, id string, inputs []models.PositionInput) (*models.Portfolio, error) {
	positions := models.ToPositions(inputs)
	if err := models.ValidatePositions(positions); err != nil {
		return nil, err
	}

	var p *models.Portfolio
	err := s.locker.WithLock(userID, func() error {
		var err error
		p, err = s.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		p.Positions = positions
		return s.repo.ReplacePositions(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.PortfolioPositionsReplaced, p, nil)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.locker.WithLock(userID, func() error {
		if _, err := s.Get(ctx, userID, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("portfolio deleted", zap.String("portfolio_id", id), zap.String("user_id", userID))
	s.publish(ctx, events.PortfolioDeleted, &models.Portfolio{ID: id, UserID: userID}, nil)
	return nil
}

// Allocate splits amount across the portfolio's positions by target
// allocation at current prices, buying whole shares only.
func (s *Service) Allocate(ctx context.Context, userID, id string, amount float64) (*models.AllocationPlan, error) {
	if amount <= 0 {
		return nil, apperrors.Validation("invalid allocation request", map[string]string{"amount": "must be greater than 0"})
	}

	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if len(p.Positions) == 0 {
		return nil, apperrors.Validation("portfolio has no positions", map[string]string{"positions": "at least one position is required"})
	}

	tickers := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		tickers[i] = pos.TickerSymbol
	}
	quotes, err := s.quotes.Quotes(ctx, tickers)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.Validation("portfolio holds tickers without market data", map[string]string{
				"positions": err.Error(),
			})
		}
		return nil, err
	}

	total := decimal.NewFromFloat(amount).Round(2)
	hundred := decimal.NewFromInt(100)
	invested := decimal.Zero

	plan := &models.AllocationPlan{
		PortfolioID: p.ID,
		Amount:      total.InexactFloat64(),
		Lines:       make([]models.AllocationLine, 0, len(p.Positions)),
	}
	for _, pos := range p.Positions {
		q := quotes[pos.TickerSymbol]
		price := decimal.NewFromFloat(q.Price)
		if !price.IsPositive() {
			return nil, apperrors.External("no usable price for "+pos.TickerSymbol, nil)
		}

		budget := total.Mul(decimal.NewFromFloat(pos.TargetAllocation)).Div(hundred).Round(2)
		shares := budget.Div(price).Floor()
		spent := shares.Mul(price).Round(2)
		invested = invested.Add(spent)

		plan.Lines = append(plan.Lines, models.AllocationLine{
			Ticker:           pos.TickerSymbol,
			TargetAllocation: pos.TargetAllocation,
			Price:            q.Price,
			Amount:           budget.InexactFloat64(),
			Shares:           shares.IntPart(),
			Invested:         spent.InexactFloat64(),
		})
	}
	plan.Invested = invested.InexactFloat64()
	plan.Cash = total.Sub(invested).InexactFloat64()

	return plan, nil
}

// Generate asks the AI generator for a draft and, unless req.Save is
// false, stores it as a new portfolio. The bool reports whether it was
// saved.
func (s *Service) Generate(ctx context.Context, userID string, req models.GenerateRequest) (*models.Portfolio, bool, error) {
	if s.generator == nil {
		return nil, false, apperrors.New(apperrors.KindUnavailable, "AI portfolio generation is not configured", nil)
	}

	var strategy models.StrategyType
	if strings.TrimSpace(req.StrategyType) != "" {
		var err error
		strategy, err = models.ParseStrategyType(req.StrategyType)
		if err != nil {
			return nil, false, apperrors.Validation("invalid generation request", map[string]string{
				"strategy_type": "must be one of: conservative, moderate, aggressive",
			})
		}
	}

	draft, err := s.generator.Submit(ctx, ai.Request{
		Goal:             req.Goal,
		StrategyType:     strategy,
		MaxPositions:     req.MaxPositions,
		PreferredTickers: req.PreferredTickers,
		ExcludedTickers:  req.ExcludedTickers,
	})
	if err != nil {
		return nil, false, err
	}

	p := &models.Portfolio{
		UserID:               userID,
		Name:                 draft.Name,
		Description:          draft.Description,
		StrategyType:         draft.StrategyType,
		RebalancingFrequency: draft.RebalancingFrequency,
		Positions:            draft.Positions,
	}
	if err := models.ValidatePortfolio(p); err != nil {
		return nil, false, err
	}

	if req.Save != nil && !*req.Save {
		now := s.now().UTC()
		p.CreatedAt, p.UpdatedAt = now, now
		return p, false, nil
	}

	err = s.locker.WithLock(userID, func() error {
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("generated portfolio saved",
		zap.String("portfolio_id", p.ID),
		zap.String("user_id", userID),
		zap.String("strategy_type", string(p.StrategyType)),
	)
	s.publish(ctx, events.PortfolioGenerated, p, map[string]any{"goal": req.Goal})
	return p, true, nil
}

// publish never fails the caller; delivery problems are logged.
func (s *Service) publish(ctx context.Context, typ events.Type, p *models.Portfolio, payload any) {
	err := s.events.Publish(ctx, events.Event{
		Type:        typ,
		PortfolioID: p.ID,
		UserID:      p.UserID,
		At:          s.now().UTC(),
		Payload:     payload,
	})
	if err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", string(typ)),
			zap.String("portfolio_id", p.ID),
			zap.Error(err),
		)
	}
}

// parseStrategy keeps unknown input as-is so validation can report it.
func parseStrategy(raw string) models.StrategyType {
	if s, err := models.ParseStrategyType(raw); err == nil {
		return s
	}
	return models.StrategyType(raw)
}

func parseFrequency(raw string) models.RebalancingFrequency {
	if f, err := models.ParseRebalancingFrequency(raw); err == nil {
		return f
	}
	return models.RebalancingFrequency(raw)
}
