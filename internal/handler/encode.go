package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/discount"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/reconcile"
	"github.com/xenking/kart-orders/pkg/jxdecimal"
)

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func str(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	str(e, "id", p.ID)
	str(e, "name", p.Name)
	jxdecimal.Field(e, "price", p.Price)
	jxdecimal.Field(e, "promotionDiscount", p.PromotionDiscount)
	str(e, "category", p.Category)
	e.FieldStart("image")
	e.ObjStart()
	str(e, "thumbnail", h.imageURL(p.Image.Thumbnail))
	str(e, "mobile", h.imageURL(p.Image.Mobile))
	str(e, "tablet", h.imageURL(p.Image.Tablet))
	str(e, "desktop", h.imageURL(p.Image.Desktop))
	e.ObjEnd()
	if len(p.Variants) > 0 {
		e.FieldStart("variants")
		e.ArrStart()
		for _, v := range p.Variants {
			e.ObjStart()
			str(e, "name", v.Name)
			jxdecimal.Field(e, "price", v.Price)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, li cart.LineItem) {
	e.ObjStart()
	str(e, "instanceId", li.InstanceID)
	str(e, "productId", li.ProductID)
	if li.Variant != "" {
		str(e, "variant", li.Variant)
	}
	str(e, "name", li.Name)
	e.FieldStart("quantity")
	e.Int(li.Quantity)
	jxdecimal.Field(e, "unitOriginalPrice", li.UnitOriginalPrice)
	jxdecimal.Field(e, "unitPromotionDiscount", li.UnitPromotionDiscount)
	jxdecimal.Field(e, "unitAppliedPromotion", li.UnitAppliedPromotion)
	jxdecimal.Field(e, "unitVoucherDiscount", li.UnitVoucherDiscount)
	jxdecimal.Field(e, "unitFinalPrice", li.UnitFinalPrice)
	jxdecimal.Field(e, "lineTotal", li.FinalTotal())
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t discount.Totals) {
	e.ObjStart()
	jxdecimal.Field(e, "subtotalBeforeDiscount", t.SubtotalBeforeDiscount)
	jxdecimal.Field(e, "promotionDiscountTotal", t.PromotionDiscountTotal)
	jxdecimal.Field(e, "subtotalAfterPromotion", t.SubtotalAfterPromotion)
	jxdecimal.Field(e, "itemLevelDiscount", t.ItemLevelDiscount)
	jxdecimal.Field(e, "orderLevelDiscount", t.OrderLevelDiscount)
	jxdecimal.Field(e, "voucherDiscountTotal", t.VoucherDiscountTotal)
	jxdecimal.Field(e, "grandTotal", t.GrandTotal)
	e.ObjEnd()
}

// encodeCartFields writes the fields shared by quotes and orders.
func encodeCartFields(e *jx.Encoder, c cart.Snapshot, t discount.Totals) {
	e.FieldStart("items")
	e.ArrStart()
	for _, li := range c.Items {
		encodeLine(e, li)
	}
	e.ArrEnd()
	if c.Voucher != nil {
		e.FieldStart("voucher")
		e.ObjStart()
		str(e, "code", c.Voucher.Code)
		str(e, "kind", c.Voucher.Kind.String())
		jxdecimal.Field(e, "value", c.Voucher.Value)
		e.ObjEnd()
	}
	if c.TableRef != "" {
		str(e, "tableRef", c.TableRef)
	}
	if c.OwnerRef != "" {
		str(e, "ownerRef", c.OwnerRef)
	}
	if c.Note != "" {
		str(e, "note", c.Note)
	}
	e.FieldStart("totals")
	encodeTotals(e, t)
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	encodeCartFields(e, q.Cart, q.Totals)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	str(e, "id", o.ID)
	e.FieldStart("version")
	e.Int(o.Version)
	encodeCartFields(e, o.Cart, o.Totals)
	str(e, "createdAt", o.CreatedAt.UTC().Format(time.RFC3339))
	str(e, "updatedAt", o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeChange(e *jx.Encoder, ch reconcile.Change) {
	e.ObjStart()
	str(e, "kind", ch.Kind.String())
	str(e, "identity", ch.Identity)
	if ch.Original != nil {
		str(e, "originalInstanceId", ch.Original.InstanceID)
		e.FieldStart("originalQuantity")
		e.Int(ch.OriginalQuantity)
	}
	if ch.Updated != nil {
		str(e, "instanceId", ch.Updated.InstanceID)
		e.FieldStart("newQuantity")
		e.Int(ch.NewQuantity)
	}
	e.ObjEnd()
}

func encodeUpdate(e *jx.Encoder, res *order.UpdateResult, summary string) {
	e.ObjStart()
	e.FieldStart("applied")
	e.Bool(res.Applied)
	str(e, "summary", summary)

	n := res.Comparison.Counts()
	e.FieldStart("counts")
	e.ObjStart()
	e.FieldStart("added")
	e.Int(n.Added)
	e.FieldStart("removed")
	e.Int(n.Removed)
	e.FieldStart("quantityChanged")
	e.Int(n.QuantityChanged)
	e.FieldStart("unchanged")
	e.Int(n.Unchanged)
	e.ObjEnd()

	e.FieldStart("changes")
	e.ArrStart()
	for _, ch := range res.Comparison.Changes {
		encodeChange(e, ch)
	}
	e.ArrEnd()

	c := res.Comparison
	e.FieldStart("attributes")
	e.ObjStart()
	e.FieldStart("voucher")
	e.Bool(c.VoucherChanged)
	e.FieldStart("table")
	e.Bool(c.TableChanged)
	e.FieldStart("owner")
	e.Bool(c.OwnerChanged)
	e.FieldStart("note")
	e.Bool(c.NoteChanged)
	e.ObjEnd()

	e.FieldStart("order")
	encodeOrder(e, res.Order)
	e.ObjEnd()
}
