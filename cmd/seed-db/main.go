package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/voucher"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

type productJSON struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	PromotionDiscount decimal.Decimal `json:"promotionDiscount"`
	Category          string          `json:"category"`
	Image             struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
	Variants []struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	} `json:"variants"`
}

func (p productJSON) toDomain() product.Product {
	out := product.Product{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price,
		PromotionDiscount: p.PromotionDiscount,
		Category:          p.Category,
		Image: product.Image{
			Thumbnail: p.Image.Thumbnail,
			Mobile:    p.Image.Mobile,
			Tablet:    p.Image.Tablet,
			Desktop:   p.Image.Desktop,
		},
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, product.Variant{Name: v.Name, Price: v.Price})
	}
	return out
}

// demoVouchers holds one voucher of each kind.
var demoVouchers = []voucher.Rule{
	{
		Code:        "HAPPYHOURS",
		Kind:        cart.PercentOrder,
		Value:       decimal.NewFromInt(18),
		Description: "Happy Hours: 18% off the whole order",
	},
	{
		Code:        "GIAM20K",
		Kind:        cart.FixedValue,
		Value:       decimal.NewFromInt(20000),
		MinItems:    2,
		Description: "20.000đ off orders of 2+ items",
	},
	{
		Code:  "DONGGIA",
		Kind:  cart.SamePriceProduct,
		Value: decimal.NewFromInt(29000),
		EligibleIdentities: []string{
			cart.IdentityOf("pho-bo", ""),
			cart.IdentityOf("pho-bo", "small"),
			cart.IdentityOf("bun-cha", ""),
			cart.IdentityOf("com-tam", ""),
		},
		Description: "Noodles and rice dishes at 29.000đ",
	},
	{
		Code:               "NUADRINK",
		Kind:               cart.SamePriceProduct,
		Value:              decimal.RequireFromString("0.5"),
		EligibleIdentities: []string{cart.IdentityOf("ca-phe-sua-da", ""), cart.IdentityOf("ca-phe-sua-da", "large")},
		MaxUses:            100,
		Description:        "Half price coffee, first 100 orders",
	},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or KART_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	productRepo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := productRepo.Upsert(ctx, p); err != nil {
			return errors.Wrap(err, "seed products")
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	if err := postgres.NewVoucherRepository(pool).UpsertBatch(ctx, demoVouchers); err != nil {
		return errors.Wrap(err, "seed vouchers")
	}
	for _, v := range demoVouchers {
		slog.Info("upserted voucher",
			slog.String("code", v.Code),
			slog.String("kind", v.Kind.String()),
			slog.String("description", v.Description),
		)
	}

	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default test key",
		Scopes:  []string{auth.ScopeCreateOrder},
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default test key"))

	return nil
}

func readProducts(path string) ([]product.Product, error) {
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	out := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" || !p.Price.IsPositive() {
			return nil, errors.Errorf("product %q needs an id and a positive price", p.ID)
		}
		out = append(out, p.toDomain())
	}
	return out, nil
}
