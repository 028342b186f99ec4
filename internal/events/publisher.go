package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Type string

const (
	PortfolioCreated           Type = "portfolio.created"
	PortfolioUpdated           Type = "portfolio.updated"
	PortfolioPositionsReplaced Type = "portfolio.positions_replaced"
	PortfolioDeleted           Type = "portfolio.deleted"
	PortfolioGenerated         Type = "portfolio.generated"
)

// Event describes a change to one portfolio.
type Event struct {
	Type        Type      `json:"type"`
	PortfolioID string    `json:"portfolio_id"`
	UserID      string    `json:"user_id"`
	At          time.Time `json:"at"`
	Payload     any       `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// messageWriter is the subset of *kafka.Writer we use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by portfolio id, so every
// event for one portfolio lands on the same partition.
type KafkaPublisher struct {
	w      messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher returns a publisher backed by an async kafka.Writer.
// Publish only enqueues; delivery failures are logged from the writer's
// completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           200 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             deliveryLogger(logger),
	}
	return &KafkaPublisher{w: w, logger: logger}
}

func deliveryLogger(logger *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		logger.Warn("event delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.PortfolioID),
		Value: value,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("type", string(e.Type)),
		zap.String("portfolio_id", e.PortfolioID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
