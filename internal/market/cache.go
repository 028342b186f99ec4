package market

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/atharvakonge/portfolio-ai/internal/models"
)

// CachedProvider keeps quotes from the wrapped provider for ttl.
type CachedProvider struct {
	next  Provider
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCachedProvider(next Provider, ttl time.Duration) (*CachedProvider, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12, // quotes cost 1 each
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{next: next, cache: c, ttl: ttl}, nil
}

func (c *CachedProvider) Quote(ctx context.Context, ticker string) (Quote, error) {
	ticker = models.NormalizeTicker(ticker)
	if v, ok := c.cache.Get(ticker); ok {
		return v.(Quote), nil
	}

	q, err := c.next.Quote(ctx, ticker)
	if err != nil {
		return Quote{}, err
	}
	c.cache.SetWithTTL(ticker, q, 1, c.ttl)
	c.cache.Wait()
	return q, nil
}

func (c *CachedProvider) Quotes(ctx context.Context, tickers []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(tickers))
	var misses []string
	for _, t := range tickers {
		t = models.NormalizeTicker(t)
		if v, ok := c.cache.Get(t); ok {
			out[t] = v.(Quote)
			continue
		}
		misses = append(misses, t)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.next.Quotes(ctx, misses)
	if err != nil {
		return nil, err
	}
	for t, q := range fetched {
		c.cache.SetWithTTL(t, q, 1, c.ttl)
		out[t] = q
	}
	c.cache.Wait()
	return out, nil
}

func (c *CachedProvider) Close() { c.cache.Close() }
