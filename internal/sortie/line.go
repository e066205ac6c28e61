package sortie

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/catalog"
)

// LineState is the lifecycle position of a line within a draft.
type LineState string

const (
	StateBlank        LineState = "blank"
	StatePopulated    LineState = "populated"
	StateHasPromotion LineState = "has_promotion"
	StateOffered      LineState = "offered"
)

// Line is an order line. It is implemented by NormalLine and OfferedLine only.
type Line interface {
	ID() string
	Product() (catalog.Product, bool)
	Quantity() decimal.Decimal
	UnitPrice() decimal.Decimal
	// Weight is the display weight: unit weight times quantity when the
	// product is known, the stored weight otherwise.
	Weight() decimal.Decimal
	Offered() bool

	line()
}

// NormalLine is a line entered by the user.
type NormalLine struct {
	id         string
	product    catalog.Product
	hasProduct bool
	quantity   decimal.Decimal
	unitPrice  decimal.Decimal
	weight     decimal.Decimal
	version    uint64
	// touched records a user edit of quantity or price.
	touched bool
}

func newBlankLine(id string) NormalLine {
	return NormalLine{
		id:        id,
		quantity:  decimal.NewFromInt(1),
		unitPrice: decimal.Zero,
		weight:    decimal.Zero,
	}
}

func (l NormalLine) ID() string { return l.id }

func (l NormalLine) Product() (catalog.Product, bool) { return l.product, l.hasProduct }

func (l NormalLine) Quantity() decimal.Decimal { return l.quantity }

func (l NormalLine) UnitPrice() decimal.Decimal { return l.unitPrice }

func (l NormalLine) Weight() decimal.Decimal {
	if l.hasProduct {
		return l.product.UnitWeight.Mul(l.quantity)
	}
	return l.weight
}

func (NormalLine) Offered() bool { return false }

// Version increases on every product or quantity change.
func (l NormalLine) Version() uint64 { return l.version }

// Valid reports whether the line can be submitted.
func (l NormalLine) Valid() bool {
	return l.hasProduct && l.quantity.IsPositive() && !l.unitPrice.IsNegative()
}

// Incomplete reports a line without a product whose quantity or price was
// edited, or whose product was cleared.
func (l NormalLine) Incomplete() bool {
	return !l.hasProduct && l.touched
}

func (NormalLine) line() {}

// OfferedLine is a zero-price line generated by a promotion. It has no mutators.
type OfferedLine struct {
	id       string
	product  catalog.Product
	quantity decimal.Decimal
}

func (l OfferedLine) ID() string { return l.id }

func (l OfferedLine) Product() (catalog.Product, bool) { return l.product, true }

func (l OfferedLine) Quantity() decimal.Decimal { return l.quantity }

func (OfferedLine) UnitPrice() decimal.Decimal { return decimal.Zero }

func (l OfferedLine) Weight() decimal.Decimal { return l.product.UnitWeight.Mul(l.quantity) }

func (OfferedLine) Offered() bool { return true }

// Valid reports whether the line can be submitted.
func (l OfferedLine) Valid() bool { return l.quantity.IsPositive() }

func (OfferedLine) line() {}

func lineValid(l Line) bool {
	switch v := l.(type) {
	case NormalLine:
		return v.Valid()
	case OfferedLine:
		return v.Valid()
	}
	return false
}
