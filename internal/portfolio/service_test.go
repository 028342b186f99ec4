package portfolio

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/portfolio-ai/internal/ai"
	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/events"
	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/models"
	"github.com/atharvakonge/portfolio-ai/internal/testutil"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu    sync.Mutex
	items map[string]models.Portfolio
	err   error
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]models.Portfolio{}}
}

func clonePortfolio(p models.Portfolio) models.Portfolio {
	p.Positions = append([]models.Position{}, p.Positions...)
	return p
}

func (r *memRepo) Create(_ context.Context, p *models.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	for i := range p.Positions {
		p.Positions[i].ID = uuid.NewString()
		p.Positions[i].PortfolioID = p.ID
	}
	r.items[p.ID] = clonePortfolio(*p)
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*models.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return nil, apperrors.NotFound("portfolio %s not found", id)
	}
	p = clonePortfolio(p)
	return &p, nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]models.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Portfolio{}
	for _, p := range r.items {
		if p.UserID == userID {
			out = append(out, clonePortfolio(p))
		}
	}
	return out, nil
}

func (r *memRepo) Update(_ context.Context, p *models.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	r.items[p.ID] = clonePortfolio(*p)
	return nil
}

func (r *memRepo) ReplacePositions(ctx context.Context, p *models.Portfolio) error {
	return r.Update(ctx, p)
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return apperrors.NotFound("portfolio %s not found", id)
	}
	delete(r.items, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Submit(ctx context.Context, req ai.Request) (*ai.Draft, error) {
	args := m.Called(ctx, req)
	draft, _ := args.Get(0).(*ai.Draft)
	return draft, args.Error(1)
}

type fixture struct {
	svc  *Service
	repo *memRepo
	pub  *recordingPublisher
	gen  *mockGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: newMemRepo(),
		pub:  &recordingPublisher{},
		gen:  &mockGenerator{},
	}
	quotes := market.NewSimulatedProvider(testutil.SampleMarketData(), rand.New(rand.NewSource(1)))
	f.svc = NewService(f.repo, quotes, f.gen, f.pub, nil)
	return f
}

func (f *fixture) create(t *testing.T) *models.Portfolio {
	t.Helper()
	req := testutil.SamplePortfolioData()
	req.Positions = testutil.SamplePositions()
	p, err := f.svc.Create(context.Background(), testutil.SampleUserID, req)
	require.NoError(t, err)
	return p
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	testutil.AssertValidUUID(t, p.ID)
	assert.Equal(t, testutil.SampleUserID, p.UserID)
	assert.Equal(t, models.StrategyAggressive, p.StrategyType)
	require.Len(t, p.Positions, 4)
	testutil.AssertAllocationsSumTo100(t, p.Positions)
	assert.Equal(t, []events.Type{events.PortfolioCreated}, f.pub.types())
}

func TestCreate_NormalizesInput(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), testutil.SampleUserID, models.CreatePortfolioRequest{
		Name:                 "  Index  ",
		StrategyType:         " Conservative",
		RebalancingFrequency: "MONTHLY",
		Positions:            []models.PositionInput{{Ticker: " vti ", Allocation: 100}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Index", p.Name)
	assert.Equal(t, models.StrategyConservative, p.StrategyType)
	assert.Equal(t, models.RebalanceMonthly, p.RebalancingFrequency)
	assert.Equal(t, "VTI", p.Positions[0].TickerSymbol)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), testutil.SampleUserID, models.CreatePortfolioRequest{
		Name:         "",
		StrategyType: "yolo",
		Positions:    []models.PositionInput{{Ticker: "AAPL", Allocation: 60}},
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "strategy_type")
	assert.Contains(t, appErr.Fields, "positions")
	assert.Empty(t, f.repo.items)
	assert.Empty(t, f.pub.types())
}

func TestCreate_WithoutPositionsIsDraft(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), testutil.SampleUserID, testutil.SamplePortfolioData())
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
}

func TestCreate_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	p := f.create(t)
	assert.NotEmpty(t, p.ID)
}

func TestGet_OtherUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	got, err := f.svc.Get(context.Background(), testutil.SampleUserID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.Get(context.Background(), "someone-else", p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.create(t)
	f.create(t)

	mine, err := f.svc.List(context.Background(), testutil.SampleUserID, 20, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.List(context.Background(), "nobody", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestUpdate_Partial(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	name := "Renamed"
	freq := "weekly"
	got, err := f.svc.Update(context.Background(), testutil.SampleUserID, p.ID, models.UpdatePortfolioRequest{
		Name:                 &name,
		RebalancingFrequency: &freq,
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, models.RebalanceWeekly, got.RebalancingFrequency)
	assert.Equal(t, p.Description, got.Description)
	assert.Equal(t, p.StrategyType, got.StrategyType)
	assert.Len(t, got.Positions, 4)
	assert.Equal(t, []events.Type{events.PortfolioCreated, events.PortfolioUpdated}, f.pub.types())
}

func TestUpdate_RejectsInvalidAndKeepsStored(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	blank := "   "
	_, err := f.svc.Update(context.Background(), testutil.SampleUserID, p.ID, models.UpdatePortfolioRequest{Name: &blank})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	stored, err := f.svc.Get(context.Background(), testutil.SampleUserID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tech Growth", stored.Name)
}

func TestUpdate_OtherUser(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	name := "Mine now"
	_, err := f.svc.Update(context.Background(), "intruder", p.ID, models.UpdatePortfolioRequest{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSetPositions(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	got, err := f.svc.SetPositions(context.Background(), testutil.SampleUserID, p.ID, []models.PositionInput{
		{Ticker: "VTI", Allocation: 60},
		{Ticker: "bnd", Allocation: 40},
	})
	require.NoError(t, err)
	require.Len(t, got.Positions, 2)
	assert.Equal(t, "BND", got.Positions[1].TickerSymbol)

	_, err = f.svc.SetPositions(context.Background(), testutil.SampleUserID, p.ID, []models.PositionInput{
		{Ticker: "VTI", Allocation: 60},
		{Ticker: "VTI", Allocation: 40},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, f.pub.types(), events.PortfolioPositionsReplaced)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), "intruder", p.ID), apperrors.ErrNotFound)
	require.NoError(t, f.svc.Delete(context.Background(), testutil.SampleUserID, p.ID))

	_, err := f.svc.Get(context.Background(), testutil.SampleUserID, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), testutil.SampleUserID, p.ID), apperrors.ErrNotFound)
	assert.Contains(t, f.pub.types(), events.PortfolioDeleted)
}

func TestAllocate(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	plan, err := f.svc.Allocate(context.Background(), testutil.SampleUserID, p.ID, 10000)
	require.NoError(t, err)

	assert.Equal(t, p.ID, plan.PortfolioID)
	assert.Equal(t, 10000.0, plan.Amount)
	require.Len(t, plan.Lines, 4)

	shares := map[string]int64{}
	for _, l := range plan.Lines {
		shares[l.Ticker] = l.Shares
		assert.Equal(t, 2500.0, l.Amount)
		assert.LessOrEqual(t, l.Invested, l.Amount)
	}
	assert.Equal(t, map[string]int64{"AAPL": 14, "MSFT": 7, "GOOGL": 17, "NVDA": 5}, shares)
	assert.InDelta(t, 9766.25, plan.Invested, 1e-9)
	assert.InDelta(t, 233.75, plan.Cash, 1e-9)
}

func TestAllocate_Rejects(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	_, err := f.svc.Allocate(context.Background(), testutil.SampleUserID, p.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	draft, err := f.svc.Create(context.Background(), testutil.SampleUserID, testutil.SamplePortfolioData())
	require.NoError(t, err)
	_, err = f.svc.Allocate(context.Background(), testutil.SampleUserID, draft.ID, 1000)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	unknown, err := f.svc.Create(context.Background(), testutil.SampleUserID, models.CreatePortfolioRequest{
		Name:         "Unknown",
		StrategyType: "moderate",
		Positions:    []models.PositionInput{{Ticker: "ZZZZ", Allocation: 100}},
	})
	require.NoError(t, err)
	_, err = f.svc.Allocate(context.Background(), testutil.SampleUserID, unknown.ID, 1000)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Fields["positions"], "ZZZZ")
}

func sampleDraft() *ai.Draft {
	return &ai.Draft{
		Name:         "AI Generated Portfolio",
		StrategyType: models.StrategyModerate,
		Positions: []models.Position{
			{TickerSymbol: "AAPL", TargetAllocation: 50},
			{TickerSymbol: "MSFT", TargetAllocation: 50},
		},
	}
}

func TestGenerate_Saves(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Submit", mock.Anything, ai.Request{
		Goal:         "balanced tech",
		StrategyType: models.StrategyModerate,
		MaxPositions: 4,
	}).Return(sampleDraft(), nil).Once()

	p, saved, err := f.svc.Generate(context.Background(), testutil.SampleUserID, models.GenerateRequest{
		Goal:         "balanced tech",
		StrategyType: "Moderate",
		MaxPositions: 4,
	})
	require.NoError(t, err)

	assert.True(t, saved)
	testutil.AssertValidUUID(t, p.ID)
	assert.Equal(t, testutil.SampleUserID, p.UserID)
	testutil.AssertAllocationsSumTo100(t, p.Positions)
	assert.Contains(t, f.repo.items, p.ID)
	assert.Equal(t, []events.Type{events.PortfolioGenerated}, f.pub.types())
	f.gen.AssertExpectations(t)
}

func TestGenerate_DraftOnly(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Submit", mock.Anything, mock.Anything).Return(sampleDraft(), nil).Once()

	save := false
	p, saved, err := f.svc.Generate(context.Background(), testutil.SampleUserID, models.GenerateRequest{Goal: "x", Save: &save})
	require.NoError(t, err)

	assert.False(t, saved)
	assert.Empty(t, p.ID)
	assert.Empty(t, f.repo.items)
	assert.Empty(t, f.pub.types())
}

func TestGenerate_Errors(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Generate(context.Background(), testutil.SampleUserID, models.GenerateRequest{Goal: "x", StrategyType: "wild"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	f.gen.On("Submit", mock.Anything, mock.Anything).Return(nil, apperrors.External("model down", nil)).Once()
	_, _, err = f.svc.Generate(context.Background(), testutil.SampleUserID, models.GenerateRequest{Goal: "x"})
	assert.ErrorIs(t, err, apperrors.ErrExternal)

	quotes := market.NewSimulatedProvider(nil, nil)
	svc := NewService(f.repo, quotes, nil, nil, nil)
	_, _, err = svc.Generate(context.Background(), testutil.SampleUserID, models.GenerateRequest{Goal: "x"})
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}
