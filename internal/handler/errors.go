package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/voucher"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// statusOf maps domain errors to a status code and a client message.
// Unknown errors yield 500.
func statusOf(err error) (int, string) {
	var (
		malformed  *malformedError
		invalid    *invalidFieldError
		qtyErr     *order.InvalidQuantityError
		missing    *order.ProductNotFoundError
		unknownRow *order.UnknownRowError
		variantErr *product.UnknownVariantError
	)
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, malformed.Error()
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, order.ErrEmptyItems.Error()
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, invalid.Error()
	case errors.As(err, &qtyErr):
		return http.StatusUnprocessableEntity, qtyErr.Error()
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, missing.Error()
	case errors.As(err, &unknownRow):
		return http.StatusUnprocessableEntity, unknownRow.Error()
	case errors.As(err, &variantErr):
		return http.StatusUnprocessableEntity, variantErr.Error()
	case errors.Is(err, cart.ErrInvalidSnapshot):
		return http.StatusUnprocessableEntity, "invalid cart"
	case errors.Is(err, voucher.ErrInvalidVoucher):
		return http.StatusUnprocessableEntity, "invalid voucher code"
	case errors.Is(err, voucher.ErrVoucherExpired):
		return http.StatusUnprocessableEntity, "voucher is not active"
	case errors.Is(err, voucher.ErrVoucherUsageLimitReached):
		return http.StatusUnprocessableEntity, "voucher usage limit reached"
	case errors.Is(err, voucher.ErrMinItemsUnmet):
		return http.StatusUnprocessableEntity, "cart does not meet the voucher minimum"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, order.ErrVersionConflict):
		return http.StatusConflict, "order was modified, reload and retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, msg)
}
