package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a menu item. Price is the base price; a variant may override it.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	// PromotionDiscount is the catalog promotion taken off every unit.
	PromotionDiscount decimal.Decimal
	Category          string
	Image             Image
	Variants          []Variant
}

// Variant is a named option such as a size.
type Variant struct {
	Name  string
	Price decimal.Decimal
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// UnknownVariantError indicates a variant the product does not offer.
type UnknownVariantError struct {
	ProductID string
	Variant   string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("product %s has no variant %q", e.ProductID, e.Variant)
}

// UnitPrice returns the price of one unit of the given variant. An empty
// variant selects the base price.
func (p Product) UnitPrice(variant string) (decimal.Decimal, error) {
	if variant == "" {
		return p.Price, nil
	}
	for _, v := range p.Variants {
		if v.Name == variant {
			return v.Price, nil
		}
	}
	return decimal.Zero, &UnknownVariantError{ProductID: p.ID, Variant: variant}
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs skips unknown ids; callers compare lengths to detect them.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
