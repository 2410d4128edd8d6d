package jxdecimal

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	var e jx.Encoder
	e.ObjStart()
	Field(&e, "price", decimal.RequireFromString("45000.50"))
	e.ObjEnd()

	assert.Equal(t, `{"price":45000.5}`, e.String())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: `12.5`, want: "12.5"},
		{input: `"0.1"`, want: "0.1"},
		{input: `1e3`, want: "1000"},
		{input: `"abc"`, wantErr: true},
		{input: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Decode(jx.DecodeStr(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}
