package postgres

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/pkg/jxdecimal"
)

const (
	productColumns = `id, name, price, promotion_discount, category,
		image_thumbnail, image_mobile, image_tablet, image_desktop, variants`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			promotion_discount = EXCLUDED.promotion_discount,
			category = EXCLUDED.category,
			image_thumbnail = EXCLUDED.image_thumbnail,
			image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet,
			image_desktop = EXCLUDED.image_desktop,
			variants = EXCLUDED.variants`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or replaces a catalog entry.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.PromotionDiscount, p.Category,
		p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
		EncodeVariants(p.Variants),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		variants []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.PromotionDiscount, &p.Category,
		&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop,
		&variants,
	); err != nil {
		return p, err
	}

	vs, err := DecodeVariants(variants)
	if err != nil {
		return p, errors.Wrapf(err, "product %q variants", p.ID)
	}
	p.Variants = vs
	return p, nil
}

// EncodeVariants renders variants as the JSON array stored in the variants
// column.
func EncodeVariants(vs []product.Variant) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range vs {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(v.Name)
		jxdecimal.Field(&e, "price", v.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	return slices.Clone(e.Bytes())
}

// DecodeVariants parses the variants column.
func DecodeVariants(data []byte) ([]product.Variant, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []product.Variant
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var v product.Variant
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "name":
				s, err := d.Str()
				if err != nil {
					return err
				}
				v.Name = s
			case "price":
				price, err := jxdecimal.Decode(d)
				if err != nil {
					return err
				}
				v.Price = price
			default:
				return d.Skip()
			}
			return nil
		}); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode variants")
	}
	return out, nil
}
