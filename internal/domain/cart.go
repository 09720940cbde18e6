package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusAbandoned Status = "abandoned"
)

func (s Status) String() string {
	return string(s)
}

// ProductSnapshot is the display-only copy of catalog data captured when an
// item is added, so the cart renders without a live catalog call.
type ProductSnapshot struct {
	Name             string `json:"name"`
	ImageRef         string `json:"image_ref,omitempty"`
	Slug             string `json:"slug,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
}

// CartItem is a single product line. Two items are the same line iff
// (ProductID, VariantID) are equal; an empty VariantID means the base product.
type CartItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Snapshot  ProductSnapshot `json:"snapshot"`
	AddedAt   time.Time       `json:"added_at"`
}

// Key returns the line identity key.
func (i CartItem) Key() ItemKey {
	return ItemKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

type ItemKey struct {
	ProductID string
	VariantID string
}

type GuestInfo struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Cart is the aggregate root. ID stays empty until the cart is first
// persisted remotely. Items keeps insertion order and holds at most one
// line per identity key.
type Cart struct {
	ID           string     `json:"id,omitempty"`
	SessionToken string     `json:"session_token"`
	UserID       string     `json:"user_id,omitempty"`
	Items        []CartItem `json:"items"`
	Totals       CartTotals `json:"totals"`
	Guest        GuestInfo  `json:"guest_info"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewCart(sessionToken string) *Cart {
	now := time.Now()
	return &Cart{
		SessionToken: sessionToken,
		Items:        []CartItem{},
		Totals:       ComputeTotals(nil),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// FindItem returns the index of the line with the given key, or -1.
func (c *Cart) FindItem(key ItemKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) ItemCount() int {
	return c.Totals.ItemCount
}

// Clone returns a deep copy. Background savers work on clones so a save that
// completes late never observes (or races with) newer in-memory state.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}
