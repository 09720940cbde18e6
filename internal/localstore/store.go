// Package localstore is the always-available persistence tier. It holds one
// record per session token and is the fallback of last resort: loads never
// fail upward, a corrupted record degrades to an empty cart.
package localstore

import (
	"context"
	"time"

	"github.com/dkoval/cartsync/internal/domain"
)

// Record is the persisted local-store layout: the cart's items and guest
// contact data keyed by the session token, plus the last write time. The
// session token is stored inside the record as well so a loaded record can be
// correlated back to its profile.
type Record struct {
	SessionToken string            `json:"session_token"`
	Items        []domain.CartItem `json:"items"`
	Guest        domain.GuestInfo  `json:"guest_info"`
	Status       domain.Status     `json:"status"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type Store interface {
	// Load returns the record for the session token, or nil when none is
	// stored. It never returns an error: missing and corrupted records both
	// yield nil, with corruption logged by the implementation.
	Load(ctx context.Context, sessionToken string) *Record

	// Save overwrites the record for sessionToken. Callers log failures and
	// keep going; a local write error is never user-facing.
	Save(ctx context.Context, rec *Record) error

	Delete(ctx context.Context, sessionToken string) error
}

// FromCart builds the persisted record for a cart. Items are copied so the
// record can be marshaled outside the engine's lock.
func FromCart(c *domain.Cart) *Record {
	return &Record{
		SessionToken: c.SessionToken,
		Items:        append([]domain.CartItem(nil), c.Items...),
		Guest:        c.Guest,
		Status:       c.Status,
		UpdatedAt:    time.Now(),
	}
}
