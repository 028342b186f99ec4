package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// PortfolioRepository persists portfolios and their positions.
type PortfolioRepository struct {
	db Querier
}

// NewPortfolioRepository accepts a pool or an open transaction. Given a
// transaction, multi-statement writes join it instead of opening their own.
func NewPortfolioRepository(db Querier) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// touchUpdatedAt keeps updated_at strictly increasing even when two
// writes land within the clock's resolution.
const touchUpdatedAt = `updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')`

// Create inserts the portfolio and its positions in one transaction,
// assigning IDs and timestamps.
func (r *PortfolioRepository) Create(ctx context.Context, p *models.Portfolio) error {
	p.ID = uuid.NewString()

	return r.withTx(ctx, func(q Querier) error {
		err := q.QueryRowContext(ctx, `
			INSERT INTO portfolios (id, user_id, name, description, strategy_type, rebalancing_frequency)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`, p.ID, p.UserID, p.Name, nullString(p.Description), string(p.StrategyType),
			nullString(string(p.RebalancingFrequency)),
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return translate("create portfolio", err)
		}

		return insertPositions(ctx, q, p.ID, p.Positions)
	})
}

// Get returns the portfolio with its positions ordered by ticker.
func (r *PortfolioRepository) Get(ctx context.Context, id string) (*models.Portfolio, error) {
	var p models.Portfolio
	var description, frequency sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, strategy_type, rebalancing_frequency, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &description, &p.StrategyType, &frequency, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("portfolio %s not found", id)
	}
	if err != nil {
		return nil, translate("get portfolio", err)
	}
	p.Description = description.String
	p.RebalancingFrequency = models.RebalancingFrequency(frequency.String)

	byPortfolio, err := r.loadPositions(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Positions = byPortfolio[p.ID]
	if p.Positions == nil {
		p.Positions = []models.Position{}
	}

	return &p, nil
}

// ListByUser returns a page of the user's portfolios, newest first.
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Portfolio, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, strategy_type, rebalancing_frequency, created_at, updated_at
		FROM portfolios
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, translate("list portfolios", err)
	}
	defer rows.Close()

	portfolios := make([]models.Portfolio, 0)
	for rows.Next() {
		var p models.Portfolio
		var description, frequency sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &description, &p.StrategyType, &frequency, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, translate("scan portfolio", err)
		}
		p.Description = description.String
		p.RebalancingFrequency = models.RebalancingFrequency(frequency.String)
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list portfolios", err)
	}
	if len(portfolios) == 0 {
		return portfolios, nil
	}

	ids := make([]string, len(portfolios))
	for i, p := range portfolios {
		ids[i] = p.ID
	}
	byPortfolio, err := r.loadPositions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range portfolios {
		portfolios[i].Positions = byPortfolio[portfolios[i].ID]
		if portfolios[i].Positions == nil {
			portfolios[i].Positions = []models.Position{}
		}
	}

	return portfolios, nil
}

// Update writes the scalar fields and bumps updated_at.
func (r *PortfolioRepository) Update(ctx context.Context, p *models.Portfolio) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE portfolios
		SET name = $2,
		    description = $3,
		    strategy_type = $4,
		    rebalancing_frequency = $5,
		    `+touchUpdatedAt+`
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.Name, nullString(p.Description), string(p.StrategyType),
		nullString(string(p.RebalancingFrequency)),
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("portfolio %s not found", p.ID)
	}
	if err != nil {
		return translate("update portfolio", err)
	}
	return nil
}

// ReplacePositions swaps p's stored positions for p.Positions atomically
// and bumps the portfolio's updated_at.
func (r *PortfolioRepository) ReplacePositions(ctx context.Context, p *models.Portfolio) error {
	return r.withTx(ctx, func(q Querier) error {
		err := q.QueryRowContext(ctx,
			`UPDATE portfolios SET `+touchUpdatedAt+` WHERE id = $1 RETURNING updated_at`,
			p.ID,
		).Scan(&p.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("portfolio %s not found", p.ID)
		}
		if err != nil {
			return translate("touch portfolio", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM positions WHERE portfolio_id = $1`, p.ID); err != nil {
			return translate("delete positions", err)
		}

		return insertPositions(ctx, q, p.ID, p.Positions)
	})
}

// Delete removes the portfolio; its positions are removed by the
// ON DELETE CASCADE foreign key.
func (r *PortfolioRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return translate("delete portfolio", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return translate("delete portfolio", err)
	}
	if n == 0 {
		return apperrors.NotFound("portfolio %s not found", id)
	}
	return nil
}

func (r *PortfolioRepository) CountPositions(ctx context.Context, portfolioID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE portfolio_id = $1`, portfolioID,
	).Scan(&n)
	if err != nil {
		return 0, translate("count positions", err)
	}
	return n, nil
}

func (r *PortfolioRepository) loadPositions(ctx context.Context, portfolioIDs []string) (map[string][]models.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, ticker_symbol, target_allocation, created_at, updated_at
		FROM positions
		WHERE portfolio_id = ANY($1)
		ORDER BY portfolio_id, ticker_symbol
	`, pq.Array(portfolioIDs))
	if err != nil {
		return nil, translate("load positions", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Position, len(portfolioIDs))
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.TickerSymbol, &pos.TargetAllocation, &pos.CreatedAt, &pos.UpdatedAt); err != nil {
			return nil, translate("scan position", err)
		}
		out[pos.PortfolioID] = append(out[pos.PortfolioID], pos)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("load positions", err)
	}
	return out, nil
}

func insertPositions(ctx context.Context, q Querier, portfolioID string, positions []models.Position) error {
	for i := range positions {
		pos := &positions[i]
		pos.ID = uuid.NewString()
		pos.PortfolioID = portfolioID

		err := q.QueryRowContext(ctx, `
			INSERT INTO positions (id, portfolio_id, ticker_symbol, target_allocation)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`, pos.ID, portfolioID, pos.TickerSymbol, pos.TargetAllocation,
		).Scan(&pos.CreatedAt, &pos.UpdatedAt)
		if err != nil {
			return translate(fmt.Sprintf("insert position %s", pos.TickerSymbol), err)
		}
	}
	return nil
}

// withTx runs fn in a new transaction, or directly when the repository
// was built on a transaction already.
func (r *PortfolioRepository) withTx(ctx context.Context, fn func(q Querier) error) error {
	b, ok := r.db.(txBeginner)
	if !ok {
		return fn(r.db)
	}

	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return translate("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate("commit transaction", err)
	}
	return nil
}

// translate maps driver errors onto application error kinds.
func translate(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.New(apperrors.KindNotFound, op+": not found", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return apperrors.Conflict(op+": duplicate value", err)
		case "23503": // foreign_key_violation
			return apperrors.New(apperrors.KindNotFound, op+": referenced portfolio does not exist", err)
		case "23502", "23514", "22P02", "22003": // not_null, check, invalid_text, numeric out of range
			return apperrors.New(apperrors.KindValidation, op+": "+pqErr.Message, err)
		}
	}

	return apperrors.Internal(op, err)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
