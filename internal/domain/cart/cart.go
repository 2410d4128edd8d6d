// Package cart holds the in-memory cart snapshot shared by the discount
// engine and the order reconciler.
//
// A Snapshot is a plain value: callers own it and pass copies into the pure
// pricing and diffing functions. Nothing in this package keeps state between
// calls.
package cart

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidSnapshot is wrapped by every snapshot validation error.
var ErrInvalidSnapshot = errors.New("invalid cart snapshot")

// LineItem is one unit-priced row of a cart.
type LineItem struct {
	// Identity groups interchangeable rows (product + variant). It is not
	// unique per row.
	Identity string
	// InstanceID addresses this specific row.
	InstanceID string
	ProductID  string
	Variant    string
	Name       string
	Quantity   int

	// UnitOriginalPrice is fixed when the row is added.
	UnitOriginalPrice decimal.Decimal
	// UnitPromotionDiscount comes from the catalog; the engine reads it but
	// never rewrites it.
	UnitPromotionDiscount decimal.Decimal

	// Outputs of the discount engine.
	UnitFinalPrice       decimal.Decimal
	UnitVoucherDiscount  decimal.Decimal
	UnitAppliedPromotion decimal.Decimal
}

// IdentityOf builds the multiset key for a product and optional variant.
func IdentityOf(productID, variant string) string {
	if variant == "" {
		return productID
	}
	return productID + ":" + variant
}

// PriceAfterPromotion returns the unit price with the promotion applied,
// clamped so that a promotion larger than the price yields zero.
func (li LineItem) PriceAfterPromotion() decimal.Decimal {
	return clamp(li.UnitOriginalPrice.Sub(li.UnitPromotionDiscount), decimal.Zero, li.UnitOriginalPrice)
}

// FinalTotal is UnitFinalPrice multiplied by Quantity.
func (li LineItem) FinalTotal() decimal.Decimal {
	return li.UnitFinalPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Snapshot is an ordered cart plus the non-pricing attributes of an order.
type Snapshot struct {
	Items    []LineItem
	Voucher  *Voucher
	TableRef string
	OwnerRef string
	Note     string
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Items != nil {
		out.Items = make([]LineItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.Voucher != nil {
		v := s.Voucher.clone()
		out.Voucher = &v
	}
	return out
}

// VoucherCode returns the attached voucher code or "" without a voucher.
func (s Snapshot) VoucherCode() string {
	if s.Voucher == nil {
		return ""
	}
	return s.Voucher.Code
}

// TotalQuantity sums the quantity of every row.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, it := range s.Items {
		total += it.Quantity
	}
	return total
}

// Find returns the row with the given instance id.
func (s Snapshot) Find(instanceID string) (LineItem, bool) {
	for _, it := range s.Items {
		if it.InstanceID == instanceID {
			return it, true
		}
	}
	return LineItem{}, false
}

// DuplicateInstanceError reports two rows sharing an instance id.
type DuplicateInstanceError struct {
	InstanceID string
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("duplicate instance id %q", e.InstanceID)
}

func (e *DuplicateInstanceError) Unwrap() error { return ErrInvalidSnapshot }

// InvalidQuantityError reports a row whose quantity is below one.
type InvalidQuantityError struct {
	InstanceID string
	Quantity   int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("row %q: quantity %d must be at least 1", e.InstanceID, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidSnapshot }

// Validate checks the snapshot invariants: unique instance ids, identities
// present, quantities of at least one and non-negative prices.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Items))
	for _, it := range s.Items {
		if it.InstanceID == "" {
			return errors.Wrap(ErrInvalidSnapshot, "row without instance id")
		}
		if _, ok := seen[it.InstanceID]; ok {
			return &DuplicateInstanceError{InstanceID: it.InstanceID}
		}
		seen[it.InstanceID] = struct{}{}

		if it.Identity == "" {
			return errors.Wrapf(ErrInvalidSnapshot, "row %q without identity", it.InstanceID)
		}
		if it.Quantity < 1 {
			return &InvalidQuantityError{InstanceID: it.InstanceID, Quantity: it.Quantity}
		}
		if it.UnitOriginalPrice.IsNegative() || it.UnitPromotionDiscount.IsNegative() {
			return errors.Wrapf(ErrInvalidSnapshot, "row %q has a negative price", it.InstanceID)
		}
	}
	return nil
}

// AddItem returns a copy of s with item appended. An empty instance id is
// replaced with a fresh UUID and an empty identity is derived from the
// product and variant.
func (s Snapshot) AddItem(item LineItem) Snapshot {
	out := s.Clone()
	if item.InstanceID == "" {
		item.InstanceID = uuid.NewString()
	}
	if item.Identity == "" {
		item.Identity = IdentityOf(item.ProductID, item.Variant)
	}
	out.Items = append(out.Items, item)
	return out
}

// RemoveItem returns a copy of s without the row instanceID.
func (s Snapshot) RemoveItem(instanceID string) Snapshot {
	out := s.Clone()
	items := out.Items[:0]
	for _, it := range out.Items {
		if it.InstanceID != instanceID {
			items = append(items, it)
		}
	}
	out.Items = items
	return out
}

// SetQuantity returns a copy of s with the row's quantity replaced. A
// quantity of zero or less removes the row.
func (s Snapshot) SetQuantity(instanceID string, quantity int) Snapshot {
	if quantity <= 0 {
		return s.RemoveItem(instanceID)
	}
	out := s.Clone()
	for i := range out.Items {
		if out.Items[i].InstanceID == instanceID {
			out.Items[i].Quantity = quantity
		}
	}
	return out
}

// WithVoucher returns a copy of s carrying v (nil detaches the voucher).
func (s Snapshot) WithVoucher(v *Voucher) Snapshot {
	out := s.Clone()
	if v == nil {
		out.Voucher = nil
		return out
	}
	c := v.clone()
	out.Voucher = &c
	return out
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
