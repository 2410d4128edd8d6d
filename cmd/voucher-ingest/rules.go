package main

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/voucher"
)

// knownCodes carry a dedicated rule. Every other accepted code gets
// defaultRule.
var knownCodes = map[string]voucher.Rule{
	"FIFTYOFF": {Kind: cart.PercentOrder, Value: decimal.NewFromInt(50), Description: "50% off the whole order"},
	"FREEZAAA": {Kind: cart.PercentOrder, Value: decimal.NewFromInt(100), Description: "Everything free"},
	"HAPPYHRS": {Kind: cart.PercentOrder, Value: decimal.NewFromInt(18), Description: "Happy Hours: 18% off"},
	"OVER9000": {Kind: cart.FixedValue, Value: decimal.NewFromInt(9000), Description: "9.000đ off the order"},
	"GIAM50KK": {Kind: cart.FixedValue, Value: decimal.NewFromInt(50000), MinItems: 3, Description: "50.000đ off orders of 3+ items"},
	"BIRTHDAY": {
		Kind:               cart.SamePriceProduct,
		Value:              decimal.NewFromInt(1),
		EligibleIdentities: []string{cart.IdentityOf("che-ba-mau", "")},
		Description:        "Birthday: free dessert",
	},
	"CAPHE10K": {
		Kind:  cart.SamePriceProduct,
		Value: decimal.NewFromInt(10000),
		EligibleIdentities: []string{
			cart.IdentityOf("ca-phe-sua-da", ""),
			cart.IdentityOf("ca-phe-sua-da", "large"),
		},
		Description: "Any coffee at 10.000đ",
	},
}

var defaultRule = voucher.Rule{
	Kind:        cart.PercentOrder,
	Value:       decimal.NewFromInt(10),
	MaxUses:     1,
	Description: "Single-use promo code: 10% off",
}

func ruleFor(code string) voucher.Rule {
	rule, ok := knownCodes[code]
	if !ok {
		rule = defaultRule
	}
	rule.Code = code
	rule.EligibleIdentities = append([]string(nil), rule.EligibleIdentities...)
	return rule
}
