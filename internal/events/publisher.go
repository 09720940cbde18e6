// Package events connects the engine to the surrounding system's message
// bus: abandoned carts flow out for recovery campaigns, completed checkouts
// flow in to empty the corresponding carts.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/domain"
)

const AbandonedTopic = "cart-abandoned"

type AbandonedEvent struct {
	SessionToken string    `json:"session_token"`
	UserID       string    `json:"user_id,omitempty"`
	CartID       string    `json:"cart_id,omitempty"`
	ItemCount    int       `json:"item_count"`
	Subtotal     string    `json:"subtotal"`
	AbandonedAt  time.Time `json:"abandoned_at"`
}

type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewPublisher(log *zap.Logger, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  AbandonedTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, log: log}
}

// CartAbandoned implements the engine's event sink. Publish failures are
// logged and dropped: recovery campaigns are best effort, the cart itself is
// already flagged in the stores.
func (p *Publisher) CartAbandoned(ctx context.Context, cart *domain.Cart) {
	ev := AbandonedEvent{
		SessionToken: cart.SessionToken,
		UserID:       cart.UserID,
		CartID:       cart.ID,
		ItemCount:    cart.ItemCount(),
		Subtotal:     cart.Totals.Subtotal.String(),
		AbandonedAt:  time.Now(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("failed to marshal abandoned event", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(cart.SessionToken),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("failed to publish abandoned event",
			zap.String("session_token", cart.SessionToken), zap.Error(err))
	}
}

func (p *Publisher) Close() {
	if err := p.writer.Close(); err != nil {
		p.log.Warn("error closing abandoned event writer", zap.Error(err))
	}
}
