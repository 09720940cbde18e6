package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/engine"
	"github.com/dkoval/cartsync/internal/localstore"
)

const CheckoutTopic = "checkout-completed"

type checkoutCompleted struct {
	SessionToken string `json:"session_token"`
	UserID       string `json:"user_id,omitempty"`
}

// CheckoutConsumer empties carts whose checkout completed. A live session is
// cleared through its engine so both tiers and the in-memory state agree; a
// dormant one only needs its local record dropped, the checkout flow already
// owns the remote side.
type CheckoutConsumer struct {
	reader   *kafka.Reader
	registry *engine.Registry
	local    localstore.Store
	log      *zap.Logger
}

func NewCheckoutConsumer(registry *engine.Registry, local localstore.Store, log *zap.Logger, brokers ...string) *CheckoutConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    CheckoutTopic,
		GroupID:  "cartsync-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &CheckoutConsumer{reader: reader, registry: registry, local: local, log: log}
}

func (c *CheckoutConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("error reading checkout message", zap.Error(err))
			}
			continue
		}
		if err := c.handleMessage(ctx, m.Value); err != nil {
			c.log.Warn("failed to handle checkout message", zap.Error(err))
		}
	}
}

func (c *CheckoutConsumer) handleMessage(ctx context.Context, payload []byte) error {
	var ev checkoutCompleted
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("parse checkout message: %w", err)
	}
	if ev.SessionToken == "" {
		return fmt.Errorf("checkout message missing session_token")
	}

	if session, ok := c.registry.Peek(ev.SessionToken); ok {
		if _, err := session.Engine.Clear(ctx); err != nil {
			return fmt.Errorf("clear cart for session %s: %w", ev.SessionToken, err)
		}
		return nil
	}

	if err := c.local.Delete(ctx, ev.SessionToken); err != nil {
		return fmt.Errorf("delete local cart for session %s: %w", ev.SessionToken, err)
	}
	return nil
}

func (c *CheckoutConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing checkout reader", zap.Error(err))
	}
}
