package bankroll

import (
	"time"
)

// Lot is an open position opened by one trade. Long lots have a positive
// quantity and cost; short lots have a negative quantity and a negative cost,
// the net proceeds received when opening them.
type Lot struct {
	Time     time.Time
	Ref      string
	Quantity Quantity
	Cost     Money
}

type lots []Lot

// quantity returns the signed quantity held across lots.
func (l lots) quantity() Quantity {
	var q Quantity
	for _, x := range l {
		q = q.Add(x.Quantity)
	}
	return q
}

// cost returns the total cost basis of the lots.
func (l lots) cost(currency string) Money {
	c := M(0, currency)
	for _, x := range l {
		c = c.Add(x.Cost)
	}
	return c
}

// remove takes qty units (a positive magnitude) out of the lots, oldest first.
// A partially consumed lot gives up its cost pro rata, rounded to the minor
// unit; the rounding stays with the lot so that cost is conserved exactly. It
// returns the remaining lots and the cost removed, with the sign of the lots.
func (l lots) remove(qty Quantity) (lots, Money) {
	var remaining lots
	var removed Money
	for _, current := range l {
		if qty.IsZero() {
			remaining = append(remaining, current)
			continue
		}
		size := current.Quantity.Abs()
		if size.GreaterThan(qty) {
			// partial
			portion := current.Cost.Mul(qty).Div(size).Round()
			current.Cost = current.Cost.Sub(portion)
			if current.Quantity.IsNegative() {
				current.Quantity = current.Quantity.Add(qty)
			} else {
				current.Quantity = current.Quantity.Sub(qty)
			}
			removed = removed.Add(portion)
			remaining = append(remaining, current)
			qty = Q(0)
			continue
		}
		removed = removed.Add(current.Cost)
		qty = qty.Sub(size)
	}
	return remaining, removed
}

// pool merges every lot into a single one dated like the latest. Pooled lots
// implement the average-cost method: any removal is then at the average price.
func (l lots) pool() lots {
	if len(l) < 2 {
		return l
	}
	p := Lot{Time: l[len(l)-1].Time, Ref: l[len(l)-1].Ref}
	for _, x := range l {
		p.Quantity = p.Quantity.Add(x.Quantity)
		p.Cost = p.Cost.Add(x.Cost)
	}
	return lots{p}
}
