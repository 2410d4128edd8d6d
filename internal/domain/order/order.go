package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/discount"
	"github.com/xenking/kart-orders/internal/domain/reconcile"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned when an order changed since it was read.
	ErrVersionConflict = errors.New("order was modified concurrently")
)

// Order is a stored, priced cart.
type Order struct {
	ID     string
	Cart   cart.Snapshot
	Totals discount.Totals
	// Version starts at 1 and grows by one with every applied update.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update is the persisted form of a reconciled order change.
type Update struct {
	Comparison      reconcile.Comparison
	Cart            cart.Snapshot
	Totals          discount.Totals
	ExpectedVersion int
	UpdatedAt       time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ApplyUpdate writes only what the comparison reports as changed and
	// fails with ErrVersionConflict if the stored version differs from
	// u.ExpectedVersion.
	ApplyUpdate(ctx context.Context, id string, u Update) error
}
