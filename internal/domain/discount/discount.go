// Package discount prices a cart snapshot: per-line promotions first, then at
// most one voucher, either repricing eligible lines or spreading an
// order-level amount across lines in proportion to their post-promotion
// subtotal.
//
// The engine is a pure function of its input. It never returns errors:
// out-of-range voucher values are clamped and derived prices never go below
// zero or above the original unit price.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

// DefaultPlaces is the rounding precision of the default engine.
const DefaultPlaces int32 = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	zero    = decimal.Zero
)

// Totals decomposes the discounts of a priced cart.
type Totals struct {
	SubtotalBeforeDiscount decimal.Decimal
	SubtotalAfterPromotion decimal.Decimal
	PromotionDiscountTotal decimal.Decimal
	// ItemLevelDiscount is set by SamePriceProduct vouchers.
	ItemLevelDiscount decimal.Decimal
	// OrderLevelDiscount is set by PercentOrder and FixedValue vouchers.
	OrderLevelDiscount   decimal.Decimal
	VoucherDiscountTotal decimal.Decimal
	GrandTotal           decimal.Decimal
}

// Engine prices carts with a fixed rounding precision.
type Engine struct {
	places int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithPlaces sets the number of decimal places prices are rounded to.
func WithPlaces(places int32) Option {
	return func(e *Engine) {
		if places >= 0 {
			e.places = places
		}
	}
}

// NewEngine returns an Engine rounding to DefaultPlaces unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{places: DefaultPlaces}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Places reports the rounding precision.
func (e *Engine) Places() int32 {
	return e.places
}

var defaultEngine = NewEngine()

// Apply prices c with the default engine.
func Apply(c cart.Snapshot) (cart.Snapshot, Totals) {
	return defaultEngine.Apply(c)
}

// Apply returns a priced copy of c and its totals. Item order and identities
// are preserved; UnitOriginalPrice and UnitPromotionDiscount are never
// modified, so applying the output again yields the same result.
func (e *Engine) Apply(c cart.Snapshot) (cart.Snapshot, Totals) {
	out := c.Clone()
	applyPromotions(out.Items)

	v := out.Voucher
	if v == nil || !v.Kind.Valid() {
		return out, summarize(out.Items, zero, zero)
	}

	switch v.Kind {
	case cart.SamePriceProduct:
		itemLevel := e.repriceEligible(out.Items, *v)
		return out, summarize(out.Items, itemLevel, zero)
	case cart.PercentOrder, cart.FixedValue:
		subtotal := subtotalAfterPromotion(out.Items)
		orderLevel := e.orderLevelDiscount(*v, subtotal)
		e.allocate(out.Items, orderLevel, subtotal)
		return out, summarize(out.Items, zero, orderLevel)
	}
	return out, summarize(out.Items, zero, zero)
}

// applyPromotions sets every line to its promotion-only price.
func applyPromotions(items []cart.LineItem) {
	for i := range items {
		it := &items[i]
		after := it.PriceAfterPromotion()
		it.UnitFinalPrice = after
		it.UnitVoucherDiscount = zero
		it.UnitAppliedPromotion = it.UnitOriginalPrice.Sub(after)
	}
}

// subtotalAfterPromotion is the base order-level vouchers are computed on.
func subtotalAfterPromotion(items []cart.LineItem) decimal.Decimal {
	sum := zero
	for _, it := range items {
		sum = sum.Add(lineBase(it))
	}
	return sum
}

func lineBase(it cart.LineItem) decimal.Decimal {
	return it.PriceAfterPromotion().Mul(qty(it))
}

func qty(it cart.LineItem) decimal.Decimal {
	return decimal.NewFromInt(int64(it.Quantity))
}

func summarize(items []cart.LineItem, itemLevel, orderLevel decimal.Decimal) Totals {
	before, promo := zero, zero
	for _, it := range items {
		q := qty(it)
		before = before.Add(it.UnitOriginalPrice.Mul(q))
		promo = promo.Add(it.UnitAppliedPromotion.Mul(q))
	}
	after := before.Sub(promo)
	voucher := itemLevel.Add(orderLevel)

	return Totals{
		SubtotalBeforeDiscount: before,
		SubtotalAfterPromotion: after,
		PromotionDiscountTotal: promo,
		ItemLevelDiscount:      itemLevel,
		OrderLevelDiscount:     orderLevel,
		VoucherDiscountTotal:   voucher,
		GrandTotal:             floorAtZero(after.Sub(voucher)),
	}
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func floorAtZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return zero
	}
	return v
}
