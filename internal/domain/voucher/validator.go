package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

// Validator checks a code against a cart and returns the voucher to price it
// with.
type Validator interface {
	Validate(ctx context.Context, code string, c cart.Snapshot) (*cart.Voucher, error)
	// Redeem records one use of the code once an order has been stored.
	Redeem(ctx context.Context, code string) error
	// Release returns a use taken by Redeem when the order was not stored.
	Release(ctx context.Context, code string) error
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the rule for code and checks its time window, usage cap
// and minimum item count. It does not consume a use.
func (v *RepoValidator) Validate(ctx context.Context, code string, c cart.Snapshot) (*cart.Voucher, error) {
	rule, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidVoucher) {
			return nil, ErrInvalidVoucher
		}
		return nil, errors.Wrap(err, "lookup voucher")
	}
	if !rule.Kind.Valid() {
		return nil, ErrInvalidVoucher
	}
	if !rule.Active(v.now()) {
		return nil, ErrVoucherExpired
	}
	if rule.Exhausted() {
		return nil, ErrVoucherUsageLimitReached
	}
	if rule.MinItems > 0 && c.TotalQuantity() < rule.MinItems {
		return nil, ErrMinItemsUnmet
	}
	return rule.Voucher(), nil
}

// Redeem increments the usage counter of code.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrap(err, "increment voucher uses")
	}
	return nil
}

// Release decrements the usage counter of code.
func (v *RepoValidator) Release(ctx context.Context, code string) error {
	if err := v.repo.DecrementUses(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrap(err, "decrement voucher uses")
	}
	return nil
}
