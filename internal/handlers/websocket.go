package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atharvakonge/portfolio-ai/internal/market"
	"github.com/atharvakonge/portfolio-ai/internal/middleware"
)

// PriceUpdate represents a stock price update
type PriceUpdate struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

const writeWait = 10 * time.Second

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (for development and demo)
	},
}

// PriceStream pushes simulated price moves to websocket clients.
type PriceStream struct {
	sim      market.Simulator
	tickers  func() []string
	interval time.Duration
	done     <-chan struct{}
	logger   *zap.Logger
}

// NewPriceStream streams sim's moves every interval. defaults lists the
// tickers used when a client does not ask for any; closing done ends
// every open stream.
func NewPriceStream(sim market.Simulator, defaults func() []string, interval time.Duration, done <-chan struct{}, logger *zap.Logger) *PriceStream {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceStream{sim: sim, tickers: defaults, interval: interval, done: done, logger: logger}
}

// Handle serves GET /ws/prices?tickers=AAPL,MSFT
func (s *PriceStream) Handle(c *gin.Context) {
	var tickers []string
	if raw := c.Query("tickers"); raw != "" {
		var err error
		if tickers, err = parseTickers(raw); err != nil {
			middleware.WriteError(c, err)
			return
		}
		if _, err := s.sim.Quotes(c.Request.Context(), tickers); err != nil {
			middleware.WriteError(c, err)
			return
		}
	} else {
		tickers = s.tickers()
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.logger.With(zap.String("request_id", middleware.GetRequestID(c)))
	log.Info("price stream opened", zap.Strings("tickers", tickers))

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			log.Info("price stream closed by client")
			return

		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return

		case <-ticker.C:
			for _, t := range tickers {
				q, err := s.sim.Tick(t)
				if err != nil {
					log.Warn("price tick failed", zap.String("ticker", t), zap.Error(err))
					continue
				}

				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(PriceUpdate{
					Symbol:        q.Ticker,
					Price:         q.Price,
					Change:        q.Change,
					ChangePercent: q.ChangePercent,
					Timestamp:     q.Timestamp,
				}); err != nil {
					log.Debug("websocket write failed", zap.Error(err))
					return
				}
			}
		}
	}
}
