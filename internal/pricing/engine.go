package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Basis selects which catalogue price a draft is valued at.
type Basis string

const (
	// BasisSale values lines at the product sale price.
	BasisSale Basis = "sale"
	// BasisPurchase values lines at the product purchase price.
	BasisPurchase Basis = "purchase"
)

// ParseBasis normalises the textual basis flag.
func ParseBasis(value string) (Basis, error) {
	switch Basis(strings.ToLower(strings.TrimSpace(value))) {
	case BasisSale, "":
		return BasisSale, nil
	case BasisPurchase:
		return BasisPurchase, nil
	default:
		return "", fmt.Errorf("pricing: unknown basis %q", value)
	}
}

// Prices holds the two base prices of a product.
type Prices struct {
	Sale     decimal.Decimal
	Purchase decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	// pristineTolerance is the distance under which a price still counts as the untouched base price.
	pristineTolerance = decimal.RequireFromString("0.01")
)

// BasePrice returns the base price selected by basis.
func BasePrice(basis Basis, p Prices) decimal.Decimal {
	if basis == BasisPurchase {
		return p.Purchase
	}
	return p.Sale
}

// IsPristine reports whether current still equals base within one cent.
func IsPristine(current, base decimal.Decimal) bool {
	return current.Sub(base).Abs().LessThan(pristineTolerance)
}

// Surcharge adds pct percent of value onto value.
func Surcharge(value, pct decimal.Decimal) decimal.Decimal {
	return value.Add(value.Mul(pct).Div(hundred))
}

// RecomputeFromBase derives the unit price from the base price, ignoring any
// custom price currently held by the line. Used when the product, the basis
// or the client percentage is selected.
func RecomputeFromBase(basis Basis, p Prices, pct decimal.Decimal) decimal.Decimal {
	return Surcharge(BasePrice(basis, p), pct)
}

// RecomputeOnCurrent is the historical recompute path: a pristine price is
// re-derived from base, a customised price gets pct added on top of itself.
// It compounds percentages already folded into current and is kept apart from
// RecomputeFromBase until the intended behaviour is confirmed.
func RecomputeOnCurrent(basis Basis, p Prices, pct, current decimal.Decimal) decimal.Decimal {
	base := BasePrice(basis, p)
	if IsPristine(current, base) {
		return Surcharge(base, pct)
	}
	return Surcharge(current, pct)
}

// ManualPrice applies pct once to a price typed by the user.
func ManualPrice(typed, pct decimal.Decimal) decimal.Decimal {
	return Surcharge(typed, pct)
}

// ComputeUnitPrice computes a line unit price. When allowPristineOverride is
// false the price always comes from base; when true the historical
// pristine-check path decides between base and current.
func ComputeUnitPrice(basis Basis, p Prices, pct, current decimal.Decimal, allowPristineOverride bool) decimal.Decimal {
	if !allowPristineOverride {
		return RecomputeFromBase(basis, p, pct)
	}
	return RecomputeOnCurrent(basis, p, pct, current)
}

// SurchargeMode names the policy used when the client percentage changes on a populated draft.
type SurchargeMode string

const (
	// SurchargeFromBase re-derives every price from its base price.
	SurchargeFromBase SurchargeMode = "base"
	// SurchargeAdditive keeps the historical additive-on-current behaviour.
	SurchargeAdditive SurchargeMode = "additive"
)

// ParseSurchargeMode maps configuration text onto a mode, defaulting to SurchargeFromBase.
func ParseSurchargeMode(value string) SurchargeMode {
	if SurchargeMode(strings.ToLower(strings.TrimSpace(value))) == SurchargeAdditive {
		return SurchargeAdditive
	}
	return SurchargeFromBase
}

// Reprice applies mode to a line whose client percentage changed.
func (m SurchargeMode) Reprice(basis Basis, p Prices, pct, current decimal.Decimal) decimal.Decimal {
	return ComputeUnitPrice(basis, p, pct, current, m == SurchargeAdditive)
}
