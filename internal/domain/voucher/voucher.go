package voucher

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

var (
	// ErrInvalidVoucher is returned when a code is unknown.
	ErrInvalidVoucher = errors.New("invalid voucher code")
	// ErrVoucherExpired is returned outside the voucher's valid time window.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrVoucherUsageLimitReached is returned when a voucher has exhausted its allowed uses.
	ErrVoucherUsageLimitReached = errors.New("voucher usage limit reached")
	// ErrMinItemsUnmet is returned when the cart holds fewer units than required.
	ErrMinItemsUnmet = errors.New("voucher requires more items")
)

// Rule is a stored voucher with its eligibility constraints.
type Rule struct {
	Code  string
	Kind  cart.VoucherKind
	Value decimal.Decimal
	// EligibleIdentities lists the product identities a SamePriceProduct
	// voucher reprices.
	EligibleIdentities []string
	MinItems           int
	Description        string
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	// MaxUses of zero means unlimited.
	MaxUses int
	Uses    int
}

// Voucher returns the engine view of the rule.
func (r Rule) Voucher() *cart.Voucher {
	return &cart.Voucher{
		Code:               r.Code,
		Kind:               r.Kind,
		Value:              r.Value,
		EligibleIdentities: append([]string(nil), r.EligibleIdentities...),
	}
}

// Active reports whether now falls inside the rule's time window.
func (r Rule) Active(now time.Time) bool {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	return true
}

// Exhausted reports whether the usage cap has been reached.
func (r Rule) Exhausted() bool {
	return r.MaxUses > 0 && r.Uses >= r.MaxUses
}

// NormalizeCode canonicalizes a user-entered code. Codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of voucher rules.
type Repository interface {
	// FindByCode returns ErrInvalidVoucher for unknown codes.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
	// DecrementUses gives back one use. It never takes the counter below zero.
	DecrementUses(ctx context.Context, code string) error
}
