package discount

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(id string, price, promo string, qty int) cart.LineItem {
	return cart.LineItem{
		Identity:              id,
		InstanceID:            "row-" + id,
		ProductID:             id,
		Quantity:              qty,
		UnitOriginalPrice:     d(price),
		UnitPromotionDiscount: d(promo),
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !d(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("want %s, got %s", want, got), msgAndArgs...)
	}
}

func TestApply_NoVoucher(t *testing.T) {
	in := cart.Snapshot{Items: []cart.LineItem{
		line("latte", "45000", "5000", 2),
		line("cake", "30000", "0", 1),
		line("tea", "10000", "15000", 1),
	}}

	out, totals := Apply(in)
	require.Len(t, out.Items, 3)

	assertDec(t, "40000", out.Items[0].UnitFinalPrice)
	assertDec(t, "30000", out.Items[1].UnitFinalPrice)
	assertDec(t, "0", out.Items[2].UnitFinalPrice, "promotion above price clamps to zero")
	for _, it := range out.Items {
		assert.True(t, it.UnitVoucherDiscount.IsZero())
	}

	assertDec(t, "130000", totals.SubtotalBeforeDiscount)
	assertDec(t, "20000", totals.PromotionDiscountTotal)
	assertDec(t, "110000", totals.SubtotalAfterPromotion)
	assertDec(t, "0", totals.VoucherDiscountTotal)
	assertDec(t, "110000", totals.GrandTotal)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := cart.Snapshot{
		Items:   []cart.LineItem{line("latte", "50000", "1000", 2)},
		Voucher: &cart.Voucher{Code: "TEN", Kind: cart.PercentOrder, Value: d("10")},
	}
	_, _ = Apply(in)

	assert.True(t, in.Items[0].UnitFinalPrice.IsZero())
	assert.True(t, in.Items[0].UnitVoucherDiscount.IsZero())
}

func TestApply_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		items      []cart.LineItem
		voucher    cart.Voucher
		wantFinal  []string
		wantUnitVD []string
		wantTotals Totals
	}{
		{
			name:       "percent order over one line",
			items:      []cart.LineItem{line("latte", "50000", "0", 2)},
			voucher:    cart.Voucher{Code: "TEN", Kind: cart.PercentOrder, Value: d("10")},
			wantFinal:  []string{"45000"},
			wantUnitVD: []string{"5000"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("100000"),
				SubtotalAfterPromotion: d("100000"),
				PromotionDiscountTotal: d("0"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("10000"),
				VoucherDiscountTotal:   d("10000"),
				GrandTotal:             d("90000"),
			},
		},
		{
			name: "fixed value spread by post-promotion share",
			items: []cart.LineItem{
				line("a", "40000", "4000", 1),
				line("b", "60000", "0", 1),
			},
			voucher:    cart.Voucher{Code: "FLAT", Kind: cart.FixedValue, Value: d("10000")},
			wantFinal:  []string{"32250", "53750"},
			wantUnitVD: []string{"3750", "6250"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("100000"),
				SubtotalAfterPromotion: d("96000"),
				PromotionDiscountTotal: d("4000"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("10000"),
				VoucherDiscountTotal:   d("10000"),
				GrandTotal:             d("86000"),
			},
		},
		{
			name: "same price product fraction overrides promotion",
			items: []cart.LineItem{
				line("x", "80000", "10000", 1),
				line("y", "20000", "2000", 1),
			},
			voucher: cart.Voucher{
				Code: "HALFX", Kind: cart.SamePriceProduct, Value: d("0.5"),
				EligibleIdentities: []string{"x"},
			},
			wantFinal:  []string{"40000", "18000"},
			wantUnitVD: []string{"40000", "0"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("100000"),
				SubtotalAfterPromotion: d("98000"),
				PromotionDiscountTotal: d("2000"),
				ItemLevelDiscount:      d("40000"),
				OrderLevelDiscount:     d("0"),
				VoucherDiscountTotal:   d("40000"),
				GrandTotal:             d("58000"),
			},
		},
		{
			name:       "same price product absolute target",
			items:      []cart.LineItem{line("x", "80000", "0", 2)},
			voucher:    cart.Voucher{Kind: cart.SamePriceProduct, Value: d("29000"), EligibleIdentities: []string{"x"}},
			wantFinal:  []string{"29000"},
			wantUnitVD: []string{"51000"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("160000"),
				SubtotalAfterPromotion: d("160000"),
				PromotionDiscountTotal: d("0"),
				ItemLevelDiscount:      d("102000"),
				OrderLevelDiscount:     d("0"),
				VoucherDiscountTotal:   d("102000"),
				GrandTotal:             d("58000"),
			},
		},
		{
			name:       "same price target above original keeps original",
			items:      []cart.LineItem{line("x", "20000", "0", 1)},
			voucher:    cart.Voucher{Kind: cart.SamePriceProduct, Value: d("25000"), EligibleIdentities: []string{"x"}},
			wantFinal:  []string{"20000"},
			wantUnitVD: []string{"0"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("20000"),
				SubtotalAfterPromotion: d("20000"),
				PromotionDiscountTotal: d("0"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("0"),
				VoucherDiscountTotal:   d("0"),
				GrandTotal:             d("20000"),
			},
		},
		{
			name:       "fixed value larger than subtotal is capped",
			items:      []cart.LineItem{line("a", "30000", "0", 1)},
			voucher:    cart.Voucher{Kind: cart.FixedValue, Value: d("50000")},
			wantFinal:  []string{"0"},
			wantUnitVD: []string{"30000"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("30000"),
				SubtotalAfterPromotion: d("30000"),
				PromotionDiscountTotal: d("0"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("30000"),
				VoucherDiscountTotal:   d("30000"),
				GrandTotal:             d("0"),
			},
		},
		{
			name:       "percent above 100 is clamped",
			items:      []cart.LineItem{line("a", "30000", "0", 1)},
			voucher:    cart.Voucher{Kind: cart.PercentOrder, Value: d("150")},
			wantFinal:  []string{"0"},
			wantUnitVD: []string{"30000"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("30000"),
				SubtotalAfterPromotion: d("30000"),
				PromotionDiscountTotal: d("0"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("30000"),
				VoucherDiscountTotal:   d("30000"),
				GrandTotal:             d("0"),
			},
		},
		{
			name:       "negative fixed value is clamped to zero",
			items:      []cart.LineItem{line("a", "30000", "0", 1)},
			voucher:    cart.Voucher{Kind: cart.FixedValue, Value: d("-500")},
			wantFinal:  []string{"30000"},
			wantUnitVD: []string{"0"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("30000"),
				SubtotalAfterPromotion: d("30000"),
				PromotionDiscountTotal: d("0"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("0"),
				VoucherDiscountTotal:   d("0"),
				GrandTotal:             d("30000"),
			},
		},
		{
			name:       "zero subtotal short-circuits",
			items:      []cart.LineItem{line("free", "10000", "10000", 3)},
			voucher:    cart.Voucher{Kind: cart.PercentOrder, Value: d("50")},
			wantFinal:  []string{"0"},
			wantUnitVD: []string{"0"},
			wantTotals: Totals{
				SubtotalBeforeDiscount: d("30000"),
				SubtotalAfterPromotion: d("0"),
				PromotionDiscountTotal: d("30000"),
				ItemLevelDiscount:      d("0"),
				OrderLevelDiscount:     d("0"),
				VoucherDiscountTotal:   d("0"),
				GrandTotal:             d("0"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.voucher
			out, totals := Apply(cart.Snapshot{Items: tt.items, Voucher: &v})

			require.Len(t, out.Items, len(tt.wantFinal))
			for i := range tt.wantFinal {
				assertDec(t, tt.wantFinal[i], out.Items[i].UnitFinalPrice, "final price of line %d", i)
				assertDec(t, tt.wantUnitVD[i], out.Items[i].UnitVoucherDiscount, "voucher discount of line %d", i)
			}

			want := tt.wantTotals
			assertDec(t, want.SubtotalBeforeDiscount.String(), totals.SubtotalBeforeDiscount, "before")
			assertDec(t, want.SubtotalAfterPromotion.String(), totals.SubtotalAfterPromotion, "after promotion")
			assertDec(t, want.PromotionDiscountTotal.String(), totals.PromotionDiscountTotal, "promotion")
			assertDec(t, want.ItemLevelDiscount.String(), totals.ItemLevelDiscount, "item level")
			assertDec(t, want.OrderLevelDiscount.String(), totals.OrderLevelDiscount, "order level")
			assertDec(t, want.VoucherDiscountTotal.String(), totals.VoucherDiscountTotal, "voucher")
			assertDec(t, want.GrandTotal.String(), totals.GrandTotal, "grand total")
		})
	}
}

func TestApply_SamePriceKeepsPromotionInput(t *testing.T) {
	in := cart.Snapshot{
		Items:   []cart.LineItem{line("x", "80000", "10000", 1)},
		Voucher: &cart.Voucher{Kind: cart.SamePriceProduct, Value: d("0.5"), EligibleIdentities: []string{"x"}},
	}
	out, _ := Apply(in)

	assertDec(t, "10000", out.Items[0].UnitPromotionDiscount, "catalog promotion is kept as input")
	assertDec(t, "0", out.Items[0].UnitAppliedPromotion)

	// Detaching the voucher brings the promotion back.
	again, totals := Apply(out.WithVoucher(nil))
	assertDec(t, "70000", again.Items[0].UnitFinalPrice)
	assertDec(t, "10000", totals.PromotionDiscountTotal)
}

func TestApply_ResidueGoesToLastLine(t *testing.T) {
	in := cart.Snapshot{
		Items: []cart.LineItem{
			line("a", "10000", "0", 1),
			line("b", "10000", "0", 1),
			line("c", "10000", "0", 1),
		},
		Voucher: &cart.Voucher{Kind: cart.FixedValue, Value: d("100")},
	}
	out, totals := NewEngine(WithPlaces(0)).Apply(in)

	assertDec(t, "33", out.Items[0].UnitVoucherDiscount)
	assertDec(t, "33", out.Items[1].UnitVoucherDiscount)
	assertDec(t, "34", out.Items[2].UnitVoucherDiscount)
	assertDec(t, "29900", totals.GrandTotal)
}

func TestApply_ZeroBaseLinesAreSkipped(t *testing.T) {
	in := cart.Snapshot{
		Items: []cart.LineItem{
			line("a", "10000", "0", 1),
			line("free", "5000", "5000", 2),
		},
		Voucher: &cart.Voucher{Kind: cart.FixedValue, Value: d("1000")},
	}
	out, _ := Apply(in)

	assertDec(t, "9000", out.Items[0].UnitFinalPrice, "residue lands on the last priced line")
	assertDec(t, "0", out.Items[1].UnitFinalPrice)
	assertDec(t, "0", out.Items[1].UnitVoucherDiscount)
}

func TestApply_InvalidKindIsIgnored(t *testing.T) {
	in := cart.Snapshot{
		Items:   []cart.LineItem{line("a", "10000", "0", 1)},
		Voucher: &cart.Voucher{Kind: cart.VoucherKind(99), Value: d("50")},
	}
	out, totals := Apply(in)

	assertDec(t, "10000", out.Items[0].UnitFinalPrice)
	assertDec(t, "0", totals.VoucherDiscountTotal)
}

func TestSettle(t *testing.T) {
	bases := []decimal.Decimal{d("5"), d("0"), d("3")}

	shares := []decimal.Decimal{d("4"), d("0"), d("4")}
	settle(shares, bases, 2)
	assertDec(t, "5", shares[0])
	assertDec(t, "3", shares[2])

	shares = []decimal.Decimal{d("2"), d("0"), d("-1")}
	settle(shares, bases, 2)
	assertDec(t, "1", shares[0])
	assertDec(t, "0", shares[2])
}

// randomCart builds a cart with a voucher of the given kind from r.
func randomCart(r *rand.Rand, kind cart.VoucherKind) cart.Snapshot {
	n := 1 + r.IntN(6)
	items := make([]cart.LineItem, n)
	identities := make([]string, 0, n)
	for i := range items {
		price := int64(1+r.IntN(200)) * 500
		promo := int64(0)
		if r.IntN(3) == 0 {
			promo = int64(r.IntN(int(price/500)+2)) * 500
		}
		id := fmt.Sprintf("p%d", r.IntN(4))
		items[i] = cart.LineItem{
			Identity:              id,
			InstanceID:            fmt.Sprintf("row-%d", i),
			Quantity:              1 + r.IntN(5),
			UnitOriginalPrice:     decimal.NewFromInt(price),
			UnitPromotionDiscount: decimal.NewFromInt(promo),
		}
		if r.IntN(2) == 0 {
			identities = append(identities, id)
		}
	}

	v := cart.Voucher{Code: "RND", Kind: kind, EligibleIdentities: identities}
	switch kind {
	case cart.PercentOrder:
		v.Value = decimal.NewFromInt(int64(r.IntN(101)))
	case cart.FixedValue:
		v.Value = decimal.NewFromInt(int64(r.IntN(400)) * 250)
	case cart.SamePriceProduct:
		if r.IntN(2) == 0 {
			v.Value = decimal.NewFromInt(int64(r.IntN(101))).Div(hundred)
		} else {
			v.Value = decimal.NewFromInt(int64(2+r.IntN(100)) * 500)
		}
	}
	return cart.Snapshot{Items: items, Voucher: &v}
}

func TestApply_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	unit := decimal.New(1, -DefaultPlaces)

	for _, kind := range cart.VoucherKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			for range 300 {
				in := randomCart(r, kind)
				out, totals := Apply(in)

				// Conservation.
				sum := decimal.Zero
				for _, it := range out.Items {
					sum = sum.Add(it.FinalTotal())
				}
				want := totals.SubtotalAfterPromotion.Sub(totals.VoucherDiscountTotal)
				require.True(t, sum.Sub(want).Abs().LessThanOrEqual(unit),
					"conservation: lines sum to %s, want %s", sum, want)

				// Non-negativity and per-line voucher accounting.
				perUnitVoucher := decimal.Zero
				for _, it := range out.Items {
					require.False(t, it.UnitFinalPrice.IsNegative())
					require.True(t, it.UnitFinalPrice.LessThanOrEqual(it.UnitOriginalPrice))
					perUnitVoucher = perUnitVoucher.Add(it.UnitVoucherDiscount.Mul(decimal.NewFromInt(int64(it.Quantity))))

					if kind == cart.SamePriceProduct && in.Voucher.Eligible(it.Identity) {
						require.True(t, it.UnitAppliedPromotion.IsZero(), "voucher supersedes promotion")
						require.True(t, it.UnitOriginalPrice.Sub(it.UnitVoucherDiscount).Equal(it.UnitFinalPrice))
					}
				}
				require.True(t, perUnitVoucher.Sub(totals.VoucherDiscountTotal).Abs().LessThanOrEqual(unit),
					"voucher total %s, per-line sum %s", totals.VoucherDiscountTotal, perUnitVoucher)

				// Idempotence under re-application.
				again, againTotals := Apply(out)
				require.Equal(t, totals.GrandTotal.String(), againTotals.GrandTotal.String())
				for i := range out.Items {
					require.True(t, out.Items[i].UnitFinalPrice.Equal(again.Items[i].UnitFinalPrice))
				}
			}
		})
	}
}

func TestApply_NoVoucherIdentityProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	for range 200 {
		in := randomCart(r, cart.PercentOrder).WithVoucher(nil)
		out, totals := Apply(in)
		for i, it := range out.Items {
			require.True(t, in.Items[i].PriceAfterPromotion().Equal(it.UnitFinalPrice))
		}
		require.True(t, totals.GrandTotal.Equal(totals.SubtotalAfterPromotion))
	}
}

func TestNewEngine_Places(t *testing.T) {
	assert.Equal(t, DefaultPlaces, NewEngine().Places())
	assert.Equal(t, int32(0), NewEngine(WithPlaces(0)).Places())
	assert.Equal(t, DefaultPlaces, NewEngine(WithPlaces(-1)).Places())
}
