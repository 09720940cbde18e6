package remotestore

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/domain"
)

// breakerStore wraps a Store with a circuit breaker so a flapping remote
// backend is not hammered by every autosave tick. While the breaker is open,
// calls fail fast and the engine keeps the local copy authoritative.
type breakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

func WithBreaker(inner Store, log *zap.Logger) Store {
	settings := gobreaker.Settings{
		Name:    "remote-cart-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Sentinel results are definitive answers from a healthy backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoActiveCart) || errors.Is(err, ErrCartNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("remote store breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &breakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (b *breakerStore) FetchActiveCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.FetchActiveCart(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (b *breakerStore) ReplaceCart(ctx context.Context, userID string, cart *domain.Cart) (string, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.ReplaceCart(ctx, userID, cart)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *breakerStore) MarkAbandoned(ctx context.Context, cartID string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.MarkAbandoned(ctx, cartID)
	})
	return err
}
