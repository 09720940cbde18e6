// Package remotestore is the authoritative persistence tier, reachable only
// for identified users. The engine treats every failure here as "remote
// temporarily unavailable" and keeps the local copy authoritative.
package remotestore

import (
	"context"
	"errors"

	"github.com/dkoval/cartsync/internal/domain"
)

var (
	ErrNoActiveCart = errors.New("no active cart for user")
	ErrCartNotFound = errors.New("cart not found")
)

type Store interface {
	// FetchActiveCart returns the most recent cart with status active owned
	// by userID, including its items, or ErrNoActiveCart.
	FetchActiveCart(ctx context.Context, userID string) (*domain.Cart, error)

	// ReplaceCart upserts the cart header and wholesale-replaces the item
	// collection (no per-item diffing, so there is no partial-update
	// ambiguity). Returns the server-assigned cart id, which equals the
	// cart's own id when it already had one.
	ReplaceCart(ctx context.Context, userID string, cart *domain.Cart) (string, error)

	MarkAbandoned(ctx context.Context, cartID string) error
}
