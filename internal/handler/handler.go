// Package handler exposes the catalog, quote and order operations over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/i18n"
)

// OrderService is the subset of *order.Service the transport needs.
type OrderService interface {
	Quote(ctx context.Context, req order.CartRequest) (*order.Quote, error)
	PlaceOrder(ctx context.Context, req order.CartRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	UpdateOrder(ctx context.Context, id string, req order.UpdateRequest) (*order.UpdateResult, error)
}

var _ OrderService = (*order.Service)(nil)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// MaxBodyBytes limits request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the /api routes.
type Handler struct {
	products     product.Repository
	orders       OrderService
	locales      *i18n.Bundle
	validate     *validator.Validate
	imageBaseURL string
	maxBody      int64
}

// NewHandler constructs a Handler.
func NewHandler(
	cfg Config,
	products product.Repository,
	orders OrderService,
	locales *i18n.Bundle,
) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		products:     products,
		orders:       orders,
		locales:      locales,
		validate:     newValidator(),
		imageBaseURL: cfg.ImageBaseURL,
		maxBody:      cfg.MaxBodyBytes,
	}
}

// Mount registers the API under /api. Order routes go through auth.
func (h *Handler) Mount(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productId}", h.GetProduct)
		r.Post("/cart/quote", h.QuoteCart)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/{orderId}", h.GetOrder)
			r.Put("/orders/{orderId}", h.UpdateOrder)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "route not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		})
	})
}
