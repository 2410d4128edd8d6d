package handler

import (
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/kart-orders/internal/domain/order"
)

type itemDTO struct {
	InstanceID string `json:"instanceId" validate:"max=64"`
	ProductID  string `json:"productId" validate:"required_without=InstanceID,max=64"`
	Variant    string `json:"variant" validate:"max=64"`
	Quantity   int    `json:"quantity" validate:"lte=1000"`
}

func (it *itemDTO) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "instanceId":
			return decodeStr(d, &it.InstanceID)
		case "productId":
			return decodeStr(d, &it.ProductID)
		case "variant":
			return decodeStr(d, &it.Variant)
		case "quantity":
			return decodeInt(d, &it.Quantity)
		default:
			return d.Skip()
		}
	})
}

type cartDTO struct {
	Items           []itemDTO `json:"items" validate:"max=200,dive"`
	VoucherCode     string    `json:"voucherCode" validate:"max=64"`
	TableRef        string    `json:"tableRef" validate:"max=64"`
	OwnerRef        string    `json:"ownerRef" validate:"max=128"`
	Note            string    `json:"note" validate:"max=500"`
	ExpectedVersion int       `json:"expectedVersion" validate:"gte=0"`
}

func (c *cartDTO) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				var it itemDTO
				if err := it.Decode(d); err != nil {
					return err
				}
				c.Items = append(c.Items, it)
				return nil
			})
		// couponCode is the name older clients send.
		case "voucherCode", "couponCode":
			return decodeStr(d, &c.VoucherCode)
		case "tableRef":
			return decodeStr(d, &c.TableRef)
		case "ownerRef":
			return decodeStr(d, &c.OwnerRef)
		case "note":
			return decodeStr(d, &c.Note)
		case "expectedVersion":
			return decodeInt(d, &c.ExpectedVersion)
		default:
			return d.Skip()
		}
	})
}

func (c cartDTO) toRequest() order.CartRequest {
	items := make([]order.ItemRequest, len(c.Items))
	for i, it := range c.Items {
		items[i] = order.ItemRequest{
			InstanceID: strings.TrimSpace(it.InstanceID),
			ProductID:  strings.TrimSpace(it.ProductID),
			Variant:    strings.TrimSpace(it.Variant),
			Quantity:   it.Quantity,
		}
	}
	return order.CartRequest{
		Items:       items,
		VoucherCode: c.VoucherCode,
		TableRef:    c.TableRef,
		OwnerRef:    c.OwnerRef,
		Note:        c.Note,
	}
}

func decodeStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func decodeInt(d *jx.Decoder, dst *int) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// malformedError marks a body that could not be read or parsed.
type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return "malformed request body: " + e.err.Error() }

func (e *malformedError) Unwrap() error { return e.err }

// invalidFieldError is a DTO that parsed but failed validation.
type invalidFieldError struct {
	Field string
	Rule  string
}

func (e *invalidFieldError) Error() string {
	return e.Field + " failed " + e.Rule + " validation"
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeCart reads, parses and validates a cart body.
func (h *Handler) decodeCart(w http.ResponseWriter, r *http.Request) (cartDTO, error) {
	var dto cartDTO

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		return dto, &malformedError{err: err}
	}
	d := jx.DecodeBytes(body)
	if err := dto.Decode(d); err != nil {
		return dto, &malformedError{err: err}
	}
	if d.Next() != jx.Invalid {
		return dto, &malformedError{err: errors.New("unexpected data after object")}
	}

	if err := h.validate.Struct(dto); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			fe := fields[0]
			ns := fe.Namespace()
			if _, rest, ok := strings.Cut(ns, "."); ok {
				ns = rest
			}
			return dto, &invalidFieldError{Field: ns, Rule: fe.Tag()}
		}
		return dto, errors.Wrap(err, "validate")
	}
	return dto, nil
}
