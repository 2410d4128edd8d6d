package rediscache

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/pkg/jxdecimal"
)

func encodeProduct(p product.Product) []byte {
	var e jx.Encoder
	writeProduct(&e, p)
	return slices.Clone(e.Bytes())
}

func encodeProducts(ps []product.Product) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range ps {
		writeProduct(&e, p)
	}
	e.ArrEnd()
	return slices.Clone(e.Bytes())
}

func writeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	jxdecimal.Field(e, "price", p.Price)
	jxdecimal.Field(e, "promotion", p.PromotionDiscount)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.ObjStart()
	e.FieldStart("thumbnail")
	e.Str(p.Image.Thumbnail)
	e.FieldStart("mobile")
	e.Str(p.Image.Mobile)
	e.FieldStart("tablet")
	e.Str(p.Image.Tablet)
	e.FieldStart("desktop")
	e.Str(p.Image.Desktop)
	e.ObjEnd()
	e.FieldStart("variants")
	e.ArrStart()
	for _, v := range p.Variants {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(v.Name)
		jxdecimal.Field(e, "price", v.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func decodeProduct(data []byte) (product.Product, error) {
	return readProduct(jx.DecodeBytes(data))
}

func decodeProducts(data []byte) ([]product.Product, error) {
	out := []product.Product{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := readProduct(d)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

func readProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = jxdecimal.Decode(d)
		case "promotion":
			p.PromotionDiscount, err = jxdecimal.Decode(d)
		case "category":
			p.Category, err = d.Str()
		case "image":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "thumbnail":
					p.Image.Thumbnail, err = d.Str()
				case "mobile":
					p.Image.Mobile, err = d.Str()
				case "tablet":
					p.Image.Tablet, err = d.Str()
				case "desktop":
					p.Image.Desktop, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				var v product.Variant
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "name":
						v.Name, err = d.Str()
					case "price":
						v.Price, err = jxdecimal.Decode(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}
	return p, nil
}
