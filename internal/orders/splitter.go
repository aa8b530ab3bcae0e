package orders

import (
	"fmt"
	"math"
	"strings"
)

// Draft is the unsaved order for one seller's slice of a cart.
type Draft struct {
	SellerID      string
	Items         []Item
	SubTotalCents int64
	TotalCents    int64
}

func (d Draft) Units() int {
	n := 0
	for _, it := range d.Items {
		n += it.Quantity
	}
	return n
}

// Plan is the validated partition of a cart.
type Plan struct {
	Drafts          []Draft
	Deltas          []InventoryDelta
	GrandTotalCents int64
}

func (p Plan) SellerSales() []SellerSales {
	out := make([]SellerSales, 0, len(p.Drafts))
	for _, d := range p.Drafts {
		out = append(out, SellerSales{SellerID: d.SellerID, Units: d.Units(), RevenueCents: d.TotalCents})
	}
	return out
}

// ProductIDs returns the distinct product ids referenced by lines.
func ProductIDs(lines []CartLine) []string {
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Split validates lines against snapshot and partitions them by seller.
// Checks run in order: lines present and well formed, every product exists,
// every product has enough stock. The first failure is returned.
func Split(lines []CartLine, snapshot []Availability) (Plan, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return Plan{}, err
	}

	byID := make(map[string]Availability, len(snapshot))
	for _, a := range snapshot {
		byID[a.ProductID] = a
	}
	for _, l := range merged {
		if _, ok := byID[l.ProductID]; !ok {
			return Plan{}, &ProductNotFoundError{ProductID: l.ProductID}
		}
	}
	for _, l := range merged {
		a := byID[l.ProductID]
		if l.Quantity > a.QuantityAvailable {
			return Plan{}, &InsufficientInventoryError{
				ProductID: l.ProductID, Requested: l.Quantity, Available: a.QuantityAvailable,
			}
		}
	}

	var plan Plan
	group := make(map[string]int)
	for _, l := range merged {
		a := byID[l.ProductID]
		item := Item{
			ProductID:  a.ProductID,
			Name:       a.Name,
			Type:       a.Type,
			Quantity:   l.Quantity,
			PriceCents: a.PriceCents,
		}
		i, ok := group[a.SellerID]
		if !ok {
			i = len(plan.Drafts)
			group[a.SellerID] = i
			plan.Drafts = append(plan.Drafts, Draft{SellerID: a.SellerID})
		}
		d := &plan.Drafts[i]
		d.Items = append(d.Items, item)
		d.SubTotalCents += item.LineTotal()
		d.TotalCents = d.SubTotalCents

		plan.Deltas = append(plan.Deltas, InventoryDelta{
			ProductID:         a.ProductID,
			QuantityDelta:     -l.Quantity,
			SalesDelta:        l.Quantity,
			RevenueDeltaCents: item.LineTotal(),
		})
		plan.GrandTotalCents += item.LineTotal()
	}
	return plan, nil
}

func mergeLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	idx := make(map[string]int, len(lines))
	out := make([]CartLine, 0, len(lines))
	for n, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: line %d has no product id", ErrInvalidLine, n+1)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for product %s must be at least 1", ErrInvalidLine, id)
		}
		if i, ok := idx[id]; ok {
			if l.Quantity > math.MaxInt-out[i].Quantity {
				return nil, fmt.Errorf("%w: total quantity for product %s overflows", ErrInvalidLine, id)
			}
			out[i].Quantity += l.Quantity
			continue
		}
		idx[id] = len(out)
		out = append(out, CartLine{ProductID: id, Quantity: l.Quantity})
	}
	return out, nil
}
