package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/reconcile"
)

// QuoteCart serves POST /api/cart/quote.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	dto, err := h.decodeCart(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.orders.Quote(r.Context(), dto.toRequest())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeQuote(e, q)
	})
}

// PlaceOrder serves POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	dto, err := h.decodeCart(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.PlaceOrder(r.Context(), dto.toRequest())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Stringer("total", o.Totals.GrandTotal),
	)
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// GetOrder serves GET /api/orders/{orderId}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// UpdateOrder serves PUT /api/orders/{orderId}. The response lists the
// reconciled changes with a summary in the caller's language.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	dto, err := h.decodeCart(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "orderId")
	res, err := h.orders.UpdateOrder(r.Context(), id, order.UpdateRequest{
		CartRequest:     dto.toRequest(),
		ExpectedVersion: dto.ExpectedVersion,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tag := h.locales.Match(r.Header.Get("Accept-Language"))
	summary := reconcile.Summarize(res.Comparison, h.locales.Translator(tag))
	if res.Applied {
		zctx.From(r.Context()).Info("Order updated",
			zap.String("order_id", id),
			zap.Int("version", res.Order.Version),
			zap.String("summary", reconcile.Summarize(res.Comparison, h.locales.Translator(h.locales.Default()))),
		)
	}

	w.Header().Set("Content-Language", tag.String())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeUpdate(e, res, summary)
	})
}
