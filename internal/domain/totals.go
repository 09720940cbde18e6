package domain

import "github.com/shopspring/decimal"

// CartTotals is derived state, never mutated independently of Items.
// Tax, Shipping and Discount are extension points: the engine always computes
// them as zero, downstream pricing owns the real rules.
type CartTotals struct {
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

// ComputeTotals sums line items into aggregate totals. Pure: no I/O, no
// ordering assumptions, empty input yields all zeros. Lines with a
// non-positive quantity contribute nothing rather than failing, so a totals
// display never breaks on bad input.
func ComputeTotals(items []CartItem) CartTotals {
	t := CartTotals{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Shipping: decimal.Zero,
		Discount: decimal.Zero,
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		t.ItemCount += item.Quantity
		t.Subtotal = t.Subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	t.Total = t.Subtotal.Add(t.Tax).Add(t.Shipping).Sub(t.Discount)
	return t
}

// LineTotalFor recomputes a single line's total from its quantity and
// snapshotted unit price.
func LineTotalFor(item CartItem) decimal.Decimal {
	if item.Quantity <= 0 {
		return decimal.Zero
	}
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}
