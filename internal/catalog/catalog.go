// Package catalog resolves product display data and pricing. The engine
// calls it once per add, to snapshot the line; already-added lines never go
// back to the catalog.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrProductUnavailable = errors.New("product unavailable")

// Product is the resolved catalog data used to build a line snapshot.
type Product struct {
	Name             string          `json:"name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ImageRef         string          `json:"image_ref"`
	Slug             string          `json:"slug"`
	ShortDescription string          `json:"short_description"`
}

type Resolver interface {
	// Resolve returns the product (or variant, when variantID is non-empty).
	// Unknown products yield ErrProductUnavailable.
	Resolve(ctx context.Context, productID, variantID string) (*Product, error)
}
