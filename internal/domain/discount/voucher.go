package discount

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

// repriceEligible applies a SamePriceProduct voucher. Eligible lines lose
// their promotion and get the voucher price instead; the rest keep the
// promotion-only price. It returns the item-level discount total.
func (e *Engine) repriceEligible(items []cart.LineItem, v cart.Voucher) decimal.Decimal {
	total := zero
	for i := range items {
		it := &items[i]
		if !v.Eligible(it.Identity) {
			continue
		}
		price := e.samePrice(it.UnitOriginalPrice, v.Value)
		off := it.UnitOriginalPrice.Sub(price)

		it.UnitFinalPrice = price
		it.UnitVoucherDiscount = off
		it.UnitAppliedPromotion = zero
		total = total.Add(off.Mul(qty(*it)))
	}
	return total
}

// samePrice reads value <= 1 as a fraction off the original price and
// anything larger as an absolute target price.
func (e *Engine) samePrice(original, value decimal.Decimal) decimal.Decimal {
	if value.GreaterThan(one) {
		return decimal.Min(original, value)
	}
	frac := clamp(value, zero, one)
	return clamp(original.Mul(one.Sub(frac)).Round(e.places), zero, original)
}

// orderLevelDiscount computes the PercentOrder or FixedValue amount against
// the post-promotion subtotal. A non-positive subtotal yields zero.
func (e *Engine) orderLevelDiscount(v cart.Voucher, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return zero
	}
	switch v.Kind {
	case cart.PercentOrder:
		pct := clamp(v.Value, zero, hundred)
		return clamp(subtotal.Mul(pct).Div(hundred).Round(e.places), zero, subtotal)
	case cart.FixedValue:
		return clamp(v.Value.Round(e.places), zero, subtotal)
	case cart.SamePriceProduct:
	}
	return zero
}

// allocate spreads amount over the lines in proportion to each line's share
// of subtotal. Shares are rounded per line and the residue goes to the last
// line, in cart order, with a non-zero base, so the line discounts always add
// up to amount. When the last line cannot absorb the residue within its own
// base, the overflow walks back to earlier lines. The per-unit discount is
// the line discount divided by the quantity.
func (e *Engine) allocate(items []cart.LineItem, amount, subtotal decimal.Decimal) {
	if !amount.IsPositive() || !subtotal.IsPositive() {
		return
	}

	bases := make([]decimal.Decimal, len(items))
	last := -1
	for i := range items {
		bases[i] = lineBase(items[i])
		if bases[i].IsPositive() {
			last = i
		}
	}
	if last < 0 {
		return
	}

	shares := make([]decimal.Decimal, len(items))
	allocated := zero
	for i := range last {
		if !bases[i].IsPositive() {
			continue
		}
		shares[i] = clamp(amount.Mul(bases[i]).Div(subtotal).Round(e.places), zero, bases[i])
		allocated = allocated.Add(shares[i])
	}
	shares[last] = amount.Sub(allocated)
	settle(shares, bases, last)

	for i := range items {
		if !bases[i].IsPositive() {
			continue
		}
		it := &items[i]
		after := it.PriceAfterPromotion()
		unit := shares[i].Div(qty(*it))
		it.UnitFinalPrice = clamp(after.Sub(unit), zero, after)
		it.UnitVoucherDiscount = after.Sub(it.UnitFinalPrice)
	}
}

// settle keeps shares[last] within [0, bases[last]] by pushing the excess
// onto earlier lines, nearest first.
func settle(shares, bases []decimal.Decimal, last int) {
	excess := zero
	switch {
	case shares[last].IsNegative():
		excess = shares[last]
		shares[last] = zero
	case shares[last].GreaterThan(bases[last]):
		excess = shares[last].Sub(bases[last])
		shares[last] = bases[last]
	}
	for i := last - 1; i >= 0 && !excess.IsZero(); i-- {
		if !bases[i].IsPositive() {
			continue
		}
		adjusted := clamp(shares[i].Add(excess), zero, bases[i])
		excess = excess.Sub(adjusted.Sub(shares[i]))
		shares[i] = adjusted
	}
}
