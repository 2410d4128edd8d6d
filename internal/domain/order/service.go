package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/discount"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/reconcile"
	"github.com/xenking/kart-orders/internal/domain/voucher"
)

// ErrEmptyItems is returned for carts without rows.
var ErrEmptyItems = errors.New("items required")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// UnknownRowError indicates an update addressing a row the order does not
// have, or re-pointing an existing row at another product.
type UnknownRowError struct {
	InstanceID string
}

func (e *UnknownRowError) Error() string {
	return fmt.Sprintf("order has no row %s", e.InstanceID)
}

// ItemRequest is one requested cart row.
type ItemRequest struct {
	// InstanceID is optional for new rows. On update a non-empty id must
	// name an existing row.
	InstanceID string
	ProductID  string
	Variant    string
	Quantity   int
}

// CartRequest is the client view of a cart.
type CartRequest struct {
	Items       []ItemRequest
	VoucherCode string
	TableRef    string
	OwnerRef    string
	Note        string
}

// UpdateRequest replaces the cart of an existing order.
type UpdateRequest struct {
	CartRequest
	// ExpectedVersion of zero skips the early version check; the write is
	// still guarded by the version that was read.
	ExpectedVersion int
}

// Quote is a priced cart that has not been stored.
type Quote struct {
	Cart   cart.Snapshot
	Totals discount.Totals
}

// UpdateResult describes the outcome of UpdateOrder.
type UpdateResult struct {
	Order      *Order
	Comparison reconcile.Comparison
	// Applied is false when the update did not change anything.
	Applied bool
}

type metrics struct {
	placed          metric.Int64Counter
	updated         metric.Int64Counter
	unchanged       metric.Int64Counter
	voucherDiscount metric.Float64Counter
}

func newMetrics(m metric.Meter) (metrics, error) {
	var (
		out metrics
		err error
	)
	if out.placed, err = m.Int64Counter("kart.orders.placed",
		metric.WithDescription("Orders placed")); err != nil {
		return out, errors.Wrap(err, "orders placed counter")
	}
	if out.updated, err = m.Int64Counter("kart.orders.updated",
		metric.WithDescription("Order updates written")); err != nil {
		return out, errors.Wrap(err, "orders updated counter")
	}
	if out.unchanged, err = m.Int64Counter("kart.orders.update_unchanged",
		metric.WithDescription("Order updates without changes")); err != nil {
		return out, errors.Wrap(err, "orders unchanged counter")
	}
	if out.voucherDiscount, err = m.Float64Counter("kart.orders.voucher_discount",
		metric.WithDescription("Voucher discount granted on placed orders")); err != nil {
		return out, errors.Wrap(err, "voucher discount counter")
	}
	return out, nil
}

// Service prices, stores and reconciles orders.
type Service struct {
	products product.Repository
	vouchers voucher.Validator
	orders   Repository
	engine   *discount.Engine
	meter    metric.Meter
	metrics  metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the discount engine.
func WithEngine(e *discount.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithMeter records order counters on m.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	vouchers voucher.Validator,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products: products,
		vouchers: vouchers,
		orders:   orders,
		engine:   discount.NewEngine(),
		meter:    noop.NewMeterProvider().Meter(""),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	m, err := newMetrics(s.meter)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	return s, nil
}

// Quote prices a cart without storing it.
func (s *Service) Quote(ctx context.Context, req CartRequest) (*Quote, error) {
	snap, err := s.buildCart(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if code := strings.TrimSpace(req.VoucherCode); code != "" {
		v, err := s.vouchers.Validate(ctx, code, snap)
		if err != nil {
			return nil, errors.Wrap(err, "validate voucher")
		}
		snap.Voucher = v
	}

	priced, totals := s.engine.Apply(snap)
	return &Quote{Cart: priced, Totals: totals}, nil
}

// PlaceOrder prices the cart, consumes a voucher use and stores the order.
// The use is given back when the order cannot be stored.
func (s *Service) PlaceOrder(ctx context.Context, req CartRequest) (*Order, error) {
	q, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if q.Cart.Voucher != nil {
		if err := s.vouchers.Redeem(ctx, q.Cart.Voucher.Code); err != nil {
			return nil, errors.Wrap(err, "redeem voucher")
		}
	}

	now := s.now()
	o := &Order{
		ID:        uuid.NewString(),
		Cart:      q.Cart,
		Totals:    q.Totals,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if o.Cart.Voucher != nil {
			s.release(ctx, o.Cart.Voucher.Code)
		}
		return nil, errors.Wrap(err, "create order")
	}

	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(voucherAttr(o.Cart)))
	s.metrics.voucherDiscount.Add(ctx, o.Totals.VoucherDiscountTotal.InexactFloat64(),
		metric.WithAttributes(voucherAttr(o.Cart)))
	return o, nil
}

// GetOrder returns a stored order.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// UpdateOrder reprices the requested cart against the stored order and
// writes only the differences. Rows that keep their instance id keep the
// prices they were added at; new rows take current catalog prices.
func (s *Service) UpdateOrder(ctx context.Context, id string, req UpdateRequest) (*UpdateResult, error) {
	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != current.Version {
		return nil, ErrVersionConflict
	}

	kept := make(map[string]cart.LineItem, len(current.Cart.Items))
	for _, it := range current.Cart.Items {
		kept[it.InstanceID] = it
	}
	snap, err := s.buildCart(ctx, req.CartRequest, kept)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.VoucherCode)
	redeem := false
	switch {
	case code == "":
	case strings.EqualFold(code, current.Cart.VoucherCode()):
		// The order already holds a use of this voucher.
		snap.Voucher = current.Cart.Voucher
	default:
		v, err := s.vouchers.Validate(ctx, code, snap)
		if err != nil {
			return nil, errors.Wrap(err, "validate voucher")
		}
		snap.Voucher = v
		redeem = true
	}

	priced, totals := s.engine.Apply(snap)
	cmp := reconcile.Diff(&current.Cart, &priced)
	if !cmp.HasChanges() {
		s.metrics.unchanged.Add(ctx, 1)
		return &UpdateResult{Order: current, Comparison: cmp}, nil
	}

	if redeem {
		if err := s.vouchers.Redeem(ctx, priced.Voucher.Code); err != nil {
			return nil, errors.Wrap(err, "redeem voucher")
		}
	}

	now := s.now()
	if err := s.orders.ApplyUpdate(ctx, id, Update{
		Comparison:      cmp,
		Cart:            priced,
		Totals:          totals,
		ExpectedVersion: current.Version,
		UpdatedAt:       now,
	}); err != nil {
		if redeem {
			s.release(ctx, priced.Voucher.Code)
		}
		return nil, errors.Wrapf(err, "update order %s", id)
	}
	s.metrics.updated.Add(ctx, 1)

	return &UpdateResult{
		Order: &Order{
			ID:        current.ID,
			Cart:      priced,
			Totals:    totals,
			Version:   current.Version + 1,
			CreatedAt: current.CreatedAt,
			UpdatedAt: now,
		},
		Comparison: cmp,
		Applied:    true,
	}, nil
}

// release gives back a voucher use taken for a write that failed. The
// request context may already be done, so the release runs without it.
func (s *Service) release(ctx context.Context, code string) {
	if err := s.vouchers.Release(context.WithoutCancel(ctx), code); err != nil {
		zctx.From(ctx).Warn("Release voucher use",
			zap.String("code", code),
			zap.Error(err),
		)
	}
}

// buildCart turns requested rows into a validated, unpriced snapshot. Rows
// found in kept reuse their stored prices; other rows are priced from the
// catalog in a single batch. A nil kept map means every row is new.
func (s *Service) buildCart(ctx context.Context, req CartRequest, kept map[string]cart.LineItem) (cart.Snapshot, error) {
	if len(req.Items) == 0 {
		return cart.Snapshot{}, ErrEmptyItems
	}

	var ids []string
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return cart.Snapshot{}, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if kept != nil && item.InstanceID != "" {
			prev, ok := kept[item.InstanceID]
			if !ok || (item.ProductID != "" && (item.ProductID != prev.ProductID || item.Variant != prev.Variant)) {
				return cart.Snapshot{}, &UnknownRowError{InstanceID: item.InstanceID}
			}
			continue
		}
		ids = append(ids, item.ProductID)
	}

	catalog := make(map[string]product.Product, len(ids))
	if len(ids) > 0 {
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return cart.Snapshot{}, errors.Wrap(err, "get products")
		}
		for _, p := range fetched {
			catalog[p.ID] = p
		}
	}

	snap := cart.Snapshot{
		Items:    make([]cart.LineItem, 0, len(req.Items)),
		TableRef: req.TableRef,
		OwnerRef: req.OwnerRef,
		Note:     req.Note,
	}
	for _, item := range req.Items {
		if prev, ok := kept[item.InstanceID]; ok && item.InstanceID != "" {
			prev.Quantity = item.Quantity
			snap.Items = append(snap.Items, prev)
			continue
		}

		p, ok := catalog[item.ProductID]
		if !ok {
			return cart.Snapshot{}, &ProductNotFoundError{ProductID: item.ProductID}
		}
		price, err := p.UnitPrice(item.Variant)
		if err != nil {
			return cart.Snapshot{}, err
		}
		snap = snap.AddItem(cart.LineItem{
			InstanceID:            item.InstanceID,
			ProductID:             p.ID,
			Variant:               item.Variant,
			Name:                  p.Name,
			Quantity:              item.Quantity,
			UnitOriginalPrice:     price,
			UnitPromotionDiscount: p.PromotionDiscount,
		})
	}

	if err := snap.Validate(); err != nil {
		return cart.Snapshot{}, err
	}
	return snap, nil
}

func voucherAttr(c cart.Snapshot) attribute.KeyValue {
	if c.Voucher == nil {
		return attribute.String("voucher.kind", "none")
	}
	return attribute.String("voucher.kind", c.Voucher.Kind.String())
}
