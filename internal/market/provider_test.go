package market_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/testutil"
)

func newSimulated() *market.SimulatedProvider {
	return market.NewSimulatedProvider(testutil.SampleMarketData(), rand.New(rand.NewSource(42)))
}

func TestSimulatedProvider_Quote(t *testing.T) {
	p := newSimulated()

	q, err := p.Quote(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, 175.50, q.Price)
	assert.Equal(t, int64(50000000), q.Volume)

	_, err = p.Quote(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSimulatedProvider_QuotesReportsMissing(t *testing.T) {
	p := newSimulated()

	quotes, err := p.Quotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)

	_, err = p.Quotes(context.Background(), []string{"AAPL", "NOPE", "ALSO"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "NOPE, ALSO")
}

func TestSimulatedProvider_TickStaysWithinTwoPercent(t *testing.T) {
	p := newSimulated()

	prev, err := p.Quote(context.Background(), "NVDA")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		q, err := p.Tick("NVDA")
		require.NoError(t, err)

		step := (q.Price - prev.Price) / prev.Price * 100
		assert.LessOrEqual(t, step, 2.0+1e-9)
		assert.GreaterOrEqual(t, step, -2.0-1e-9)
		assert.Equal(t, 480.00, q.PreviousClose)
		assert.InDelta(t, q.Price-q.PreviousClose, q.Change, 1e-9)
		prev = q
	}

	_, err = p.Tick("NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSimulatedProvider_ConcurrentTicks(t *testing.T) {
	p := newSimulated()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, tk := range p.Tickers() {
				_, _ = p.Tick(tk)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"AAPL", "GOOGL", "MSFT", "NVDA"}, p.Tickers())
}

func TestDefaultQuotes(t *testing.T) {
	quotes := market.DefaultQuotes()
	for ticker, q := range quotes {
		assert.Equal(t, ticker, q.Ticker)
		assert.Greater(t, q.Price, 0.0)
		assert.InDelta(t, q.Price-q.PreviousClose, q.Change, 1e-9)
	}
}

type countingProvider struct {
	market.Provider
	mu    sync.Mutex
	calls int
}

func (c *countingProvider) Quote(ctx context.Context, ticker string) (market.Quote, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Provider.Quote(ctx, ticker)
}

func (c *countingProvider) Quotes(ctx context.Context, tickers []string) (map[string]market.Quote, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Provider.Quotes(ctx, tickers)
}

func TestCachedProvider_ServesFromCache(t *testing.T) {
	inner := &countingProvider{Provider: newSimulated()}
	cached, err := market.NewCachedProvider(inner, time.Minute)
	require.NoError(t, err)
	defer cached.Close()

	ctx := context.Background()
	_, err = cached.Quote(ctx, "AAPL")
	require.NoError(t, err)
	q, err := cached.Quote(ctx, "aapl")
	require.NoError(t, err)

	assert.Equal(t, 175.50, q.Price)
	assert.Equal(t, 1, inner.calls)

	quotes, err := cached.Quotes(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, 2, inner.calls)

	_, err = cached.Quotes(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_PropagatesErrors(t *testing.T) {
	cached, err := market.NewCachedProvider(newSimulated(), time.Minute)
	require.NoError(t, err)
	defer cached.Close()

	_, err = cached.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = cached.Quotes(context.Background(), []string{"NOPE"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
