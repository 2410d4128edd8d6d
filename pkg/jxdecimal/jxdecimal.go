// Package jxdecimal reads and writes shopspring decimals with go-faster/jx.
//
// Values are written as bare JSON numbers so no precision is lost in
// transit. Both numbers and numeric strings are accepted on input.
package jxdecimal

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes d as a JSON number.
func Encode(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}

// Field writes a named decimal field.
func Field(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	Encode(e, d)
}

// Decode reads a decimal from a JSON number or string.
func Decode(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Number:
		num, err := d.Num()
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "read number")
		}
		v, err := decimal.NewFromString(num.String())
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse %q", num.String())
		}
		return v, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "read string")
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse %q", s)
		}
		return v, nil
	default:
		return decimal.Zero, errors.Errorf("decimal: unexpected %s", tt)
	}
}
