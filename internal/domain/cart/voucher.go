package cart

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// VoucherKind is the closed set of voucher pricing policies. Switches over it
// must name every kind; Valid reports whether a value is one of them.
type VoucherKind uint8

const (
	// PercentOrder takes a percentage off the post-promotion order subtotal.
	PercentOrder VoucherKind = iota + 1
	// FixedValue takes an absolute amount off the post-promotion subtotal.
	FixedValue
	// SamePriceProduct reprices eligible lines, replacing their promotion.
	SamePriceProduct

	kindEnd
)

// ErrUnknownVoucherKind is returned by ParseVoucherKind.
var ErrUnknownVoucherKind = errors.New("unknown voucher kind")

var kindNames = [...]string{
	PercentOrder:     "percent_order",
	FixedValue:       "fixed_value",
	SamePriceProduct: "same_price_product",
}

// VoucherKinds lists every kind in declaration order.
func VoucherKinds() []VoucherKind {
	out := make([]VoucherKind, 0, int(kindEnd)-1)
	for k := PercentOrder; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a declared kind.
func (k VoucherKind) Valid() bool {
	return k >= PercentOrder && k < kindEnd
}

func (k VoucherKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindNames[k]
}

// ParseVoucherKind maps the storage name back to a kind.
func ParseVoucherKind(s string) (VoucherKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range VoucherKinds() {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownVoucherKind, "%q", s)
}

// Voucher is the single order voucher of a cart, already validated upstream.
type Voucher struct {
	Code  string
	Kind  VoucherKind
	Value decimal.Decimal
	// EligibleIdentities only matters for SamePriceProduct.
	EligibleIdentities []string
}

// Eligible reports whether the voucher may reprice rows of the identity.
func (v Voucher) Eligible(identity string) bool {
	return slices.Contains(v.EligibleIdentities, identity)
}

func (v Voucher) clone() Voucher {
	v.EligibleIdentities = slices.Clone(v.EligibleIdentities)
	return v
}
