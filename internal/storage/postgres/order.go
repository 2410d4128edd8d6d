package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/discount"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/reconcile"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, version, table_ref, owner_ref, note,
		voucher_code, voucher_kind, voucher_value, voucher_eligible,
		subtotal_before_discount, subtotal_after_promotion, promotion_discount_total,
		item_level_discount, order_level_discount, voucher_discount_total, grand_total,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderSQL = `SELECT id, version, table_ref, owner_ref, note,
		voucher_code, voucher_kind, voucher_value, voucher_eligible,
		subtotal_before_discount, subtotal_after_promotion, promotion_discount_total,
		item_level_discount, order_level_discount, voucher_discount_total, grand_total,
		created_at, updated_at
		FROM orders WHERE id = $1`

	lockOrderSQL = `SELECT version FROM orders WHERE id = $1 FOR UPDATE`

	updateOrderSQL = `UPDATE orders SET version = version + 1,
		table_ref = $3, owner_ref = $4, note = $5,
		voucher_code = $6, voucher_kind = $7, voucher_value = $8, voucher_eligible = $9,
		subtotal_before_discount = $10, subtotal_after_promotion = $11, promotion_discount_total = $12,
		item_level_discount = $13, order_level_discount = $14, voucher_discount_total = $15,
		grand_total = $16, updated_at = $17
		WHERE id = $1 AND version = $2`

	listOrderItemsSQL = `SELECT id, instance_id, identity, product_id, variant, name, position, quantity,
		unit_original_price, unit_promotion_discount, unit_final_price,
		unit_voucher_discount, unit_applied_promotion
		FROM order_items WHERE order_id = $1 ORDER BY position`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, instance_id, identity, product_id, variant,
		name, position, quantity, unit_original_price, unit_promotion_discount,
		unit_final_price, unit_voucher_discount, unit_applied_promotion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateOrderItemSQL = `UPDATE order_items SET instance_id = $2, name = $3, position = $4, quantity = $5,
		unit_original_price = $6, unit_promotion_discount = $7,
		unit_final_price = $8, unit_voucher_discount = $9, unit_applied_promotion = $10
		WHERE id = $1`

	deleteOrderItemSQL = `DELETE FROM order_items WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Orders
// live in two tables: the order header with its totals and one row per cart
// line.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its rows in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(insertOrderSQL, append(
			[]any{o.ID, o.Version},
			headerArgs(o.Cart, o.Totals, o.CreatedAt, o.UpdatedAt)...,
		)...)
		for i, it := range o.Cart.Items {
			batch.Queue(insertOrderItemSQL, insertItemArgs(o.ID, i, it)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "create order %q", o.ID)
		}
		return nil
	})
}

// Get loads an order with its rows in cart order.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	rows, err = r.pool.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %q", id)
	}
	stored, err := pgx.CollectRows(rows, scanStoredItem)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %q", id)
	}
	o.Cart.Items = make([]cart.LineItem, len(stored))
	for i, s := range stored {
		o.Cart.Items[i] = s.item
	}
	return &o, nil
}

// ApplyUpdate writes the rows the comparison marks as changed, rewrites the
// stored prices of paired rows only when they moved, and bumps the order
// version. All statements share one transaction and one batch.
func (r *OrderRepository) ApplyUpdate(ctx context.Context, id string, u order.Update) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var version int
		if err := tx.QueryRow(ctx, lockOrderSQL, id).Scan(&version); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return errors.Wrapf(err, "lock order %q", id)
		}
		if version != u.ExpectedVersion {
			return order.ErrVersionConflict
		}

		rows, err := tx.Query(ctx, listOrderItemsSQL, id)
		if err != nil {
			return errors.Wrapf(err, "list items of order %q", id)
		}
		stored, err := pgx.CollectRows(rows, scanStoredItem)
		if err != nil {
			return errors.Wrapf(err, "list items of order %q", id)
		}

		batch, err := planItemWrites(id, stored, u)
		if err != nil {
			return err
		}
		headerIdx := batch.Len()
		batch.Queue(updateOrderSQL, append(
			[]any{id, u.ExpectedVersion},
			headerArgs(u.Cart, u.Totals, u.UpdatedAt)...,
		)...)

		br := tx.SendBatch(ctx, batch)
		for i := range batch.Len() {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return errors.Wrapf(err, "update order %q", id)
			}
			if i == headerIdx && tag.RowsAffected() == 0 {
				_ = br.Close()
				return order.ErrVersionConflict
			}
		}
		return errors.Wrap(br.Close(), "close batch")
	})
}

// planItemWrites turns the comparison into row statements. Paired rows are
// matched to stored rows through the original instance id. A paired row may
// come from a new line priced at the current catalog price, so an update
// rewrites every priced column of the stored row.
func planItemWrites(orderID string, stored []storedItem, u order.Update) (*pgx.Batch, error) {
	byInstance := make(map[string]storedItem, len(stored))
	for _, s := range stored {
		byInstance[s.item.InstanceID] = s
	}
	position := make(map[string]int, len(u.Cart.Items))
	for i, it := range u.Cart.Items {
		position[it.InstanceID] = i
	}

	batch := &pgx.Batch{}
	for _, ch := range u.Comparison.Changes {
		switch ch.Kind {
		case reconcile.Removed:
			s, ok := byInstance[ch.Original.InstanceID]
			if !ok {
				return nil, order.ErrVersionConflict
			}
			batch.Queue(deleteOrderItemSQL, s.rowID)
		case reconcile.Added:
			it := *ch.Updated
			batch.Queue(insertOrderItemSQL, insertItemArgs(orderID, position[it.InstanceID], it)...)
		case reconcile.Unchanged, reconcile.QuantityChanged:
			s, ok := byInstance[ch.Original.InstanceID]
			if !ok {
				return nil, order.ErrVersionConflict
			}
			it := *ch.Updated
			pos := position[it.InstanceID]
			if !rowMoved(s, it, pos) {
				continue
			}
			batch.Queue(updateOrderItemSQL,
				s.rowID, it.InstanceID, it.Name, pos, it.Quantity,
				it.UnitOriginalPrice, it.UnitPromotionDiscount,
				it.UnitFinalPrice, it.UnitVoucherDiscount, it.UnitAppliedPromotion,
			)
		}
	}
	return batch, nil
}

func rowMoved(s storedItem, it cart.LineItem, pos int) bool {
	return s.position != pos ||
		s.item.InstanceID != it.InstanceID ||
		s.item.Name != it.Name ||
		s.item.Quantity != it.Quantity ||
		!s.item.UnitOriginalPrice.Equal(it.UnitOriginalPrice) ||
		!s.item.UnitPromotionDiscount.Equal(it.UnitPromotionDiscount) ||
		!s.item.UnitFinalPrice.Equal(it.UnitFinalPrice) ||
		!s.item.UnitVoucherDiscount.Equal(it.UnitVoucherDiscount) ||
		!s.item.UnitAppliedPromotion.Equal(it.UnitAppliedPromotion)
}

// headerArgs lists the order columns after id and version, in insert order.
func headerArgs(c cart.Snapshot, t discount.Totals, times ...any) []any {
	var (
		code, kind *string
		value      decimal.NullDecimal
		eligible   = []string{}
	)
	if v := c.Voucher; v != nil {
		k := v.Kind.String()
		code, kind = &v.Code, &k
		value = decimal.NewNullDecimal(v.Value)
		if v.EligibleIdentities != nil {
			eligible = v.EligibleIdentities
		}
	}
	args := []any{
		c.TableRef, c.OwnerRef, c.Note,
		code, kind, value, eligible,
		t.SubtotalBeforeDiscount, t.SubtotalAfterPromotion, t.PromotionDiscountTotal,
		t.ItemLevelDiscount, t.OrderLevelDiscount, t.VoucherDiscountTotal, t.GrandTotal,
	}
	return append(args, times...)
}

func insertItemArgs(orderID string, pos int, it cart.LineItem) []any {
	return []any{
		orderID, it.InstanceID, it.Identity, it.ProductID, it.Variant,
		it.Name, pos, it.Quantity, it.UnitOriginalPrice, it.UnitPromotionDiscount,
		it.UnitFinalPrice, it.UnitVoucherDiscount, it.UnitAppliedPromotion,
	}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		code     *string
		kind     *string
		value    decimal.NullDecimal
		eligible []string
		t        = &o.Totals
	)
	if err := row.Scan(
		&o.ID, &o.Version, &o.Cart.TableRef, &o.Cart.OwnerRef, &o.Cart.Note,
		&code, &kind, &value, &eligible,
		&t.SubtotalBeforeDiscount, &t.SubtotalAfterPromotion, &t.PromotionDiscountTotal,
		&t.ItemLevelDiscount, &t.OrderLevelDiscount, &t.VoucherDiscountTotal, &t.GrandTotal,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}

	if code != nil && kind != nil {
		k, err := cart.ParseVoucherKind(*kind)
		if err != nil {
			return o, errors.Wrapf(err, "order %q voucher", o.ID)
		}
		o.Cart.Voucher = &cart.Voucher{
			Code:               *code,
			Kind:               k,
			Value:              value.Decimal,
			EligibleIdentities: eligible,
		}
	}
	return o, nil
}

type storedItem struct {
	rowID    int64
	position int
	item     cart.LineItem
}

func scanStoredItem(row pgx.CollectableRow) (storedItem, error) {
	var (
		s   storedItem
		it  = &s.item
		pos int32
		qty int32
	)
	err := row.Scan(
		&s.rowID, &it.InstanceID, &it.Identity, &it.ProductID, &it.Variant, &it.Name, &pos, &qty,
		&it.UnitOriginalPrice, &it.UnitPromotionDiscount, &it.UnitFinalPrice,
		&it.UnitVoucherDiscount, &it.UnitAppliedPromotion,
	)
	s.position = int(pos)
	it.Quantity = int(qty)
	return s, err
}
