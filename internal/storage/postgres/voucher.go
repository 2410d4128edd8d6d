package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/voucher"
)

const (
	getVoucherByCodeSQL = `SELECT code, kind, value, eligible_identities, min_items, description,
		valid_from, valid_until, max_uses, uses
		FROM vouchers WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	// The cap is checked in the same statement so concurrent redemptions
	// cannot overshoot it.
	incrementVoucherUsesSQL = `UPDATE vouchers SET uses = uses + 1
		WHERE UPPER(code) = UPPER($1) AND active = TRUE AND (max_uses = 0 OR uses < max_uses)`

	decrementVoucherUsesSQL = `UPDATE vouchers SET uses = uses - 1
		WHERE UPPER(code) = UPPER($1) AND uses > 0`

	upsertVoucherSQL = `INSERT INTO vouchers (code, kind, value, eligible_identities, min_items,
		description, valid_from, valid_until, max_uses, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			eligible_identities = EXCLUDED.eligible_identities,
			min_items = EXCLUDED.min_items,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			max_uses = EXCLUDED.max_uses,
			active = TRUE`
)

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindByCode looks up an active voucher by its code (case-insensitive).
// Returns voucher.ErrInvalidVoucher when no matching active voucher exists.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Rule, error) {
	rows, err := r.pool.Query(ctx, getVoucherByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find voucher %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanVoucherRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrInvalidVoucher
		}
		return nil, errors.Wrapf(err, "find voucher %q", code)
	}
	return &rule, nil
}

// IncrementUses consumes one use of the voucher. It returns
// voucher.ErrVoucherUsageLimitReached when the cap is already reached.
func (r *VoucherRepository) IncrementUses(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementVoucherUsesSQL, code)
	if err != nil {
		return errors.Wrapf(err, "increment uses for voucher %q", code)
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrVoucherUsageLimitReached
	}
	return nil
}

// DecrementUses gives back one use of the voucher. A counter already at zero
// is left alone.
func (r *VoucherRepository) DecrementUses(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, decrementVoucherUsesSQL, code); err != nil {
		return errors.Wrapf(err, "decrement uses for voucher %q", code)
	}
	return nil
}

// Upsert inserts or replaces a voucher rule. The usage counter is kept.
func (r *VoucherRepository) Upsert(ctx context.Context, rule voucher.Rule) error {
	if _, err := r.pool.Exec(ctx, upsertVoucherSQL, upsertVoucherArgs(rule)...); err != nil {
		return errors.Wrapf(err, "upsert voucher %q", rule.Code)
	}
	return nil
}

// UpsertBatch upserts many rules in one round trip.
func (r *VoucherRepository) UpsertBatch(ctx context.Context, rules []voucher.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertVoucherSQL, upsertVoucherArgs(rule)...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d vouchers", len(rules))
	}
	return nil
}

func upsertVoucherArgs(rule voucher.Rule) []any {
	eligible := rule.EligibleIdentities
	if eligible == nil {
		eligible = []string{}
	}
	return []any{
		voucher.NormalizeCode(rule.Code), rule.Kind.String(), rule.Value, eligible, rule.MinItems,
		rule.Description, rule.ValidFrom, rule.ValidUntil, rule.MaxUses,
	}
}

func scanVoucherRule(row pgx.CollectableRow) (voucher.Rule, error) {
	var (
		rule       voucher.Rule
		kind       string
		validFrom  *time.Time
		validUntil *time.Time
		minItems   int32
		maxUses    int32
		uses       int32
	)
	if err := row.Scan(
		&rule.Code, &kind, &rule.Value, &rule.EligibleIdentities, &minItems, &rule.Description,
		&validFrom, &validUntil, &maxUses, &uses,
	); err != nil {
		return rule, err
	}

	k, err := cart.ParseVoucherKind(kind)
	if err != nil {
		return rule, errors.Wrapf(err, "voucher %q", rule.Code)
	}
	rule.Kind = k
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	rule.MinItems = int(minItems)
	rule.MaxUses = int(maxUses)
	rule.Uses = int(uses)
	return rule, nil
}
