//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/db"
	"github.com/atharvakonge/portfolio-ai/internal/models"
	"github.com/atharvakonge/portfolio-ai/internal/testutil"
)

func newTxRepo(t *testing.T) *PortfolioRepository {
	t.Helper()
	database := db.SetupTestDB(t)
	return NewPortfolioRepository(db.BeginTestTx(t, database))
}

func samplePortfolio() *models.Portfolio {
	req := testutil.SamplePortfolioData()
	return &models.Portfolio{
		UserID:       testutil.SampleUserID,
		Name:         req.Name,
		Description:  req.Description,
		StrategyType: models.StrategyType(req.StrategyType),
		Positions:    models.ToPositions(testutil.SamplePositions()),
	}
}

func TestIntegration_CreateAndGet(t *testing.T) {
	repo := newTxRepo(t)
	ctx := context.Background()

	p := samplePortfolio()
	require.NoError(t, repo.Create(ctx, p))
	testutil.AssertValidUUID(t, p.ID)

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tech Growth", got.Name)
	assert.Equal(t, models.StrategyAggressive, got.StrategyType)
	require.Len(t, got.Positions, 4)
	assert.Equal(t, "AAPL", got.Positions[0].TickerSymbol)
	for _, pos := range got.Positions {
		assert.Equal(t, p.ID, pos.PortfolioID)
		testutil.AssertValidUUID(t, pos.ID)
	}
	testutil.AssertAllocationsSumTo100(t, got.Positions)

	list, err := repo.ListByUser(ctx, testutil.SampleUserID, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Positions, 4)
}

func TestIntegration_UpdatedAtIncreases(t *testing.T) {
	repo := newTxRepo(t)
	ctx := context.Background()

	p := samplePortfolio()
	require.NoError(t, repo.Create(ctx, p))
	first := p.UpdatedAt

	p.Name = "Updated Portfolio"
	require.NoError(t, repo.Update(ctx, p))
	second := p.UpdatedAt
	assert.True(t, second.After(first), "updated_at %v should be after %v", second, first)

	p.Positions = []models.Position{{TickerSymbol: "VTI", TargetAllocation: 100}}
	require.NoError(t, repo.ReplacePositions(ctx, p))
	assert.True(t, p.UpdatedAt.After(second))

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated Portfolio", got.Name)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "VTI", got.Positions[0].TickerSymbol)
}

func TestIntegration_DeleteCascadesToPositions(t *testing.T) {
	repo := newTxRepo(t)
	ctx := context.Background()

	p := samplePortfolio()
	require.NoError(t, repo.Create(ctx, p))

	n, err := repo.CountPositions(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, repo.Delete(ctx, p.ID))

	n, err = repo.CountPositions(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.Get(ctx, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), apperrors.ErrNotFound)
}

func TestIntegration_DraftWithoutPositions(t *testing.T) {
	repo := newTxRepo(t)
	ctx := context.Background()

	p := samplePortfolio()
	p.Positions = nil
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Positions)
	assert.Empty(t, got.Positions)
}

// The failed insert aborts the transaction, so this test owns its own.
func TestIntegration_DuplicateTickerIsConflict(t *testing.T) {
	repo := newTxRepo(t)

	p := samplePortfolio()
	p.Positions = []models.Position{
		{TickerSymbol: "AAPL", TargetAllocation: 50},
		{TickerSymbol: "AAPL", TargetAllocation: 50},
	}
	err := repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
