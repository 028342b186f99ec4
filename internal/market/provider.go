package market

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

// Quote is the latest price snapshot for one ticker.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// Provider looks up quotes.
type Provider interface {
	Quote(ctx context.Context, ticker string) (Quote, error)
	// Quotes returns every requested ticker or fails naming the missing ones.
	Quotes(ctx context.Context, tickers []string) (map[string]Quote, error)
}

// Simulator moves prices; used to drive the price stream.
type Simulator interface {
	Provider
	Tick(ticker string) (Quote, error)
}

// DefaultQuotes seeds the simulator.
func DefaultQuotes() map[string]Quote {
	seed := []Quote{
		{Ticker: "AAPL", Price: 175.50, PreviousClose: 173.00, Volume: 50000000},
		{Ticker: "MSFT", Price: 350.00, PreviousClose: 351.25, Volume: 25000000},
		{Ticker: "GOOGL", Price: 140.25, PreviousClose: 139.50, Volume: 30000000},
		{Ticker: "NVDA", Price: 495.00, PreviousClose: 480.00, Volume: 40000000},
		{Ticker: "AMZN", Price: 180.00, PreviousClose: 178.40, Volume: 35000000},
		{Ticker: "TSLA", Price: 250.00, PreviousClose: 255.10, Volume: 90000000},
		{Ticker: "META", Price: 480.00, PreviousClose: 476.20, Volume: 15000000},
		{Ticker: "JPM", Price: 195.00, PreviousClose: 194.10, Volume: 9000000},
		{Ticker: "JNJ", Price: 155.00, PreviousClose: 155.60, Volume: 7000000},
		{Ticker: "KO", Price: 60.00, PreviousClose: 59.80, Volume: 12000000},
		{Ticker: "PG", Price: 165.00, PreviousClose: 164.30, Volume: 6000000},
		{Ticker: "XOM", Price: 110.00, PreviousClose: 111.20, Volume: 16000000},
		{Ticker: "VTI", Price: 260.00, PreviousClose: 258.90, Volume: 3500000},
		{Ticker: "BND", Price: 72.00, PreviousClose: 72.05, Volume: 5500000},
		{Ticker: "GLD", Price: 215.00, PreviousClose: 214.10, Volume: 8000000},
	}

	now := time.Now().UTC()
	out := make(map[string]Quote, len(seed))
	for _, q := range seed {
		q.Change = q.Price - q.PreviousClose
		q.ChangePercent = q.Change / q.PreviousClose * 100
		q.Timestamp = now
		out[q.Ticker] = q
	}
	return out
}

// SimulatedProvider serves quotes from memory and random-walks them on
// Tick. Safe for concurrent use.
type SimulatedProvider struct {
	mu     sync.Mutex
	quotes map[string]Quote
	rng    *rand.Rand
	now    func() time.Time
}

func NewSimulatedProvider(seed map[string]Quote, rng *rand.Rand) *SimulatedProvider {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	quotes := make(map[string]Quote, len(seed))
	for k, q := range seed {
		quotes[models.NormalizeTicker(k)] = q
	}
	return &SimulatedProvider{quotes: quotes, rng: rng, now: time.Now}
}

func (p *SimulatedProvider) Quote(_ context.Context, ticker string) (Quote, error) {
	ticker = models.NormalizeTicker(ticker)

	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.quotes[ticker]
	if !ok {
		return Quote{}, apperrors.NotFound("no quote for %s", ticker)
	}
	return q, nil
}

func (p *SimulatedProvider) Quotes(_ context.Context, tickers []string) (map[string]Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Quote, len(tickers))
	var missing []string
	for _, t := range tickers {
		t = models.NormalizeTicker(t)
		q, ok := p.quotes[t]
		if !ok {
			missing = append(missing, t)
			continue
		}
		out[t] = q
	}
	if len(missing) > 0 {
		return nil, apperrors.NotFound("no quote for %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Tick moves ticker's price by a random -2%..+2% step.
func (p *SimulatedProvider) Tick(ticker string) (Quote, error) {
	ticker = models.NormalizeTicker(ticker)

	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.quotes[ticker]
	if !ok {
		return Quote{}, apperrors.NotFound("no quote for %s", ticker)
	}

	step := (p.rng.Float64() - 0.5) * 4
	q.Price = q.Price * (1 + step/100)
	q.Change = q.Price - q.PreviousClose
	if q.PreviousClose != 0 {
		q.ChangePercent = q.Change / q.PreviousClose * 100
	}
	q.Timestamp = p.now().UTC()
	p.quotes[ticker] = q

	return q, nil
}

// Tickers lists the known tickers in sorted order.
func (p *SimulatedProvider) Tickers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.quotes))
	for t := range p.quotes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
