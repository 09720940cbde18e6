package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dkoval/cartsync/internal/localstore"
)

// checkoutRetryBudget bounds how long checkout waits for the remote cart to
// be confirmed before surfacing the failure.
const checkoutRetryBudget = 4

// ConfirmCheckout flushes the cart synchronously before the checkout flow
// proceeds. For identified users the remote write is retried with backoff up
// to the budget and the failure is surfaced; this is the one place remote
// unavailability reaches the caller. Guests only need the local flush.
func (e *Engine) ConfirmCheckout(ctx context.Context) (Summary, error) {
	e.mu.Lock()
	rec := localstore.FromCart(e.cart)
	snapshot := e.cart.Clone()
	seq := e.scheduledSeq.Load()
	e.mu.Unlock()

	if err := e.local.Save(ctx, rec); err != nil {
		e.log.Warn("local save before checkout failed", zap.Error(err))
	}

	ident := e.ident.Current()
	if !ident.IsUser() {
		return e.summaryOf(snapshot), nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newCheckoutBackOff(), checkoutRetryBudget),
		ctx,
	)

	var cartID string
	op := func() error {
		id, err := e.remote.ReplaceCart(ctx, ident.UserID, snapshot)
		if err != nil {
			e.log.Warn("checkout confirmation attempt failed",
				zap.String("user_id", ident.UserID), zap.Error(err))
			return err
		}
		cartID = id
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return Summary{}, fmt.Errorf("remote cart could not be confirmed: %w", err)
	}

	e.mu.Lock()
	if e.cart.ID == "" {
		e.cart.ID = cartID
	}
	snapshot = e.cart.Clone()
	e.mu.Unlock()
	e.markSaved(seq)

	return e.summaryOf(snapshot), nil
}

func newCheckoutBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
