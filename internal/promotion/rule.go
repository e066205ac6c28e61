package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/catalog"
)

// NeedsLookup reports whether a line is eligible for a promotion lookup at
// all. Lines without a product or with a non-positive quantity never carry an
// offered line.
func NeedsLookup(hasProduct bool, qty decimal.Decimal) bool {
	return hasProduct && qty.IsPositive()
}

// OfferedQuantity computes floor(qty / X) * Y. ok is false when the rule is
// unusable or the threshold is not reached.
func OfferedQuantity(rule catalog.PromotionRule, qty decimal.Decimal) (decimal.Decimal, bool) {
	if !rule.RequiredQty.IsPositive() || !rule.OfferedQty.IsPositive() {
		return decimal.Zero, false
	}
	if qty.LessThan(rule.RequiredQty) {
		return decimal.Zero, false
	}
	multiples, _ := qty.QuoRem(rule.RequiredQty, 0)
	return multiples.Mul(rule.OfferedQty), true
}
