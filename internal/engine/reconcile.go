package engine

import (
	"github.com/dkoval/cartsync/internal/domain"
)

// mergeCarts unifies a local and a remote cart into one: items sharing an
// identity key have their quantities summed, items unique to either side are
// kept, and on a shared key the local snapshot (name, price) wins since
// local is presumed freshest at merge time. Neither side's additions are
// ever dropped or overwritten.
func mergeCarts(local, remote *domain.Cart) *domain.Cart {
	merged := local.Clone()
	merged.ID = remote.ID
	merged.Status = domain.StatusActive

	for _, ri := range remote.Items {
		if i := merged.FindItem(ri.Key()); i >= 0 {
			merged.Items[i].Quantity += ri.Quantity
			continue
		}
		merged.Items = append(merged.Items, ri)
	}

	if merged.Guest == (domain.GuestInfo{}) {
		merged.Guest = remote.Guest
	}

	for i := range merged.Items {
		merged.Items[i].LineTotal = domain.LineTotalFor(merged.Items[i])
	}
	merged.Totals = domain.ComputeTotals(merged.Items)
	return merged
}
