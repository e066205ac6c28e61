package sortie

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/pricing"
	"github.com/noah-isme/backend-sortie/internal/promotion"
)

// Action is a named transition of a draft.
type Action interface {
	apply(d *Draft) ([]Effect, error)
}

// Effect is a side effect requested by a transition.
type Effect interface {
	effect()
}

// PromotionCheck asks for the promotion of a source line to be resolved.
type PromotionCheck struct {
	LineID     string
	Version    uint64
	ProductID  string
	ProductRef string
	Quantity   decimal.Decimal
}

func (PromotionCheck) effect() {}

// Request converts the check into a resolver request.
func (c PromotionCheck) Request() promotion.Request {
	return promotion.Request{
		LineID:     c.LineID,
		Version:    c.Version,
		ProductID:  c.ProductID,
		ProductRef: c.ProductRef,
		Quantity:   c.Quantity,
	}
}

// Apply returns the draft advanced by a. The receiver is left unchanged; on
// error the returned draft equals the receiver.
func (d Draft) Apply(a Action) (Draft, []Effect, error) {
	if a == nil {
		return d, nil, fmt.Errorf("nil action: %w", ErrInvalidValue)
	}
	next := d.clone()
	effects, err := a.apply(&next)
	if err != nil {
		return d, nil, err
	}
	return next, effects, nil
}

// AddLine prepends a blank line.
type AddLine struct {
	ID string
}

func (a AddLine) apply(d *Draft) ([]Effect, error) {
	id := strings.TrimSpace(a.ID)
	if id == "" {
		return nil, fmt.Errorf("line id required: %w", ErrInvalidValue)
	}
	if d.indexOf(id) >= 0 {
		return nil, fmt.Errorf("line %s already exists: %w", id, ErrInvalidValue)
	}
	d.lines = append([]Line{newBlankLine(id)}, d.lines...)
	return nil, nil
}

// RemoveLine deletes a line together with its offered line.
type RemoveLine struct {
	ID string
}

func (a RemoveLine) apply(d *Draft) ([]Effect, error) {
	_, i, err := d.normal(a.ID)
	if err != nil {
		return nil, err
	}
	d.lines = append(d.lines[:i], d.lines[i+1:]...)
	d.dropOffered(a.ID)
	return nil, nil
}

// SetLineProduct selects the product of a line. A nil Product clears it.
type SetLineProduct struct {
	ID      string
	Product *catalog.Product
}

func (a SetLineProduct) apply(d *Draft) ([]Effect, error) {
	l, i, err := d.normal(a.ID)
	if err != nil {
		return nil, err
	}
	if a.Product == nil {
		// The stored price and weight survive, so the line must be completed or removed.
		l.product, l.hasProduct = catalog.Product{}, false
		l.touched = true
	} else {
		if !a.Product.Active {
			return nil, fmt.Errorf("product %s: %w", a.Product.ID, ErrProductInactive)
		}
		l.product, l.hasProduct = *a.Product, true
		l.unitPrice = pricing.RecomputeFromBase(d.header.Basis, l.product.Prices(), d.SurchargePercent())
		l.weight = l.product.UnitWeight.Mul(l.quantity)
	}
	l.version++
	d.lines[i] = l
	return d.promotionEffects(l), nil
}

// SetLineQuantity changes the quantity of a line.
type SetLineQuantity struct {
	ID       string
	Quantity decimal.Decimal
}

func (a SetLineQuantity) apply(d *Draft) ([]Effect, error) {
	l, i, err := d.normal(a.ID)
	if err != nil {
		return nil, err
	}
	if a.Quantity.IsNegative() {
		return nil, fmt.Errorf("quantity %s: %w", a.Quantity, ErrInvalidValue)
	}
	l.quantity = a.Quantity
	if l.hasProduct {
		l.weight = l.product.UnitWeight.Mul(l.quantity)
	}
	l.touched = true
	l.version++
	d.lines[i] = l
	return d.promotionEffects(l), nil
}

// SetLinePrice applies a price typed by the user. The client surcharge is
// applied once to the typed value.
type SetLinePrice struct {
	ID    string
	Price decimal.Decimal
}

func (a SetLinePrice) apply(d *Draft) ([]Effect, error) {
	l, i, err := d.normal(a.ID)
	if err != nil {
		return nil, err
	}
	if a.Price.IsNegative() {
		return nil, fmt.Errorf("price %s: %w", a.Price, ErrInvalidValue)
	}
	l.unitPrice = pricing.ManualPrice(a.Price, d.SurchargePercent())
	l.touched = true
	d.lines[i] = l
	return nil, nil
}

// SetPromotionResult applies the outcome of a promotion resolution. OfferedID
// names the line to create when the source has none yet.
type SetPromotionResult struct {
	Outcome   promotion.Outcome
	OfferedID string
}

func (a SetPromotionResult) apply(d *Draft) ([]Effect, error) {
	src, i, err := d.normal(a.Outcome.LineID)
	if err != nil {
		return nil, fmt.Errorf("line %s: %w", a.Outcome.LineID, ErrStaleResult)
	}
	if src.version != a.Outcome.Version {
		return nil, fmt.Errorf("line %s at version %d, result for %d: %w", src.id, src.version, a.Outcome.Version, ErrStaleResult)
	}
	if a.Outcome.Offer == nil {
		d.dropOffered(src.id)
		return nil, nil
	}
	offeredID, linked := d.links[src.id]
	if !linked {
		offeredID = strings.TrimSpace(a.OfferedID)
		if offeredID == "" || d.indexOf(offeredID) >= 0 {
			return nil, fmt.Errorf("offered line id %q: %w", a.OfferedID, ErrInvalidValue)
		}
	}
	offered := OfferedLine{id: offeredID, product: a.Outcome.Offer.Product, quantity: a.Outcome.Offer.Quantity}
	if linked {
		if j := d.indexOf(offeredID); j == i+1 {
			d.lines[j] = offered
			return nil, nil
		}
		d.dropOffered(src.id)
		i = d.indexOf(src.id)
	}
	d.lines = append(d.lines[:i+1], append([]Line{offered}, d.lines[i+1:]...)...)
	d.links[src.id] = offeredID
	return nil, nil
}

// HeaderField names an editable scalar header field.
type HeaderField string

const (
	FieldOrderNumber       HeaderField = "order_number"
	FieldDate              HeaderField = "date"
	FieldDeliveryAgent     HeaderField = "delivery_agent"
	FieldCashDiscount      HeaderField = "cash_discount_percent"
	FieldFlatDiscount      HeaderField = "flat_discount"
	FieldQuarterlyDiscount HeaderField = "quarterly_discount"
	FieldValueAdjustment   HeaderField = "value_adjustment"
	FieldReturnAdjustment  HeaderField = "return_adjustment"
)

// SetHeaderField sets a scalar header field from its textual value. An empty
// value clears the field.
type SetHeaderField struct {
	Field HeaderField
	Value string
}

func (a SetHeaderField) apply(d *Draft) ([]Effect, error) {
	value := strings.TrimSpace(a.Value)
	h := &d.header
	switch a.Field {
	case FieldOrderNumber:
		h.OrderNumber = value
	case FieldDeliveryAgent:
		h.DeliveryAgentID = value
	case FieldDate:
		if value != "" {
			if _, err := time.Parse(DateLayout, value); err != nil {
				return nil, fmt.Errorf("date %q: %w", value, ErrInvalidValue)
			}
		}
		h.Date = value
	case FieldCashDiscount:
		if value == "" {
			h.CashDiscountPercent = decimal.NullDecimal{}
			return nil, nil
		}
		v, err := parseAmount(value, false)
		if err != nil {
			return nil, err
		}
		h.CashDiscountPercent = decimal.NewNullDecimal(v)
	case FieldFlatDiscount, FieldQuarterlyDiscount, FieldValueAdjustment, FieldReturnAdjustment:
		signed := a.Field == FieldValueAdjustment || a.Field == FieldReturnAdjustment
		v, err := parseAmount(value, signed)
		if err != nil {
			return nil, err
		}
		switch a.Field {
		case FieldFlatDiscount:
			h.FlatDiscount = v
		case FieldQuarterlyDiscount:
			h.QuarterlyDiscount = v
		case FieldValueAdjustment:
			h.ValueAdjustment = v
		default:
			h.ReturnAdjustment = v
		}
	default:
		return nil, fmt.Errorf("header field %q: %w", a.Field, ErrUnknownField)
	}
	return nil, nil
}

func parseAmount(value string, signed bool) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount %q: %w", value, ErrInvalidValue)
	}
	if !signed && v.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount %q must not be negative: %w", value, ErrInvalidValue)
	}
	return v, nil
}

// SelectClient sets the client and its commercial. When the surcharge
// percentage changes, every line with a product is repriced with the draft
// surcharge mode. A nil Client clears the selection.
type SelectClient struct {
	Client *catalog.Client
}

func (a SelectClient) apply(d *Draft) ([]Effect, error) {
	before := d.SurchargePercent()
	if a.Client == nil {
		d.client, d.hasClient = catalog.Client{}, false
		d.header.ClientID, d.header.CommercialID = "", ""
	} else {
		d.client, d.hasClient = *a.Client, true
		d.header.ClientID = a.Client.ID
		d.header.CommercialID = a.Client.CommercialID
	}
	after := d.SurchargePercent()
	if before.Equal(after) {
		return nil, nil
	}
	d.reprice(func(l NormalLine) decimal.Decimal {
		return d.mode.Reprice(d.header.Basis, l.product.Prices(), after, l.unitPrice)
	})
	return nil, nil
}

// SetBasis switches between sale and purchase pricing. Every line with a
// product is recomputed from the new base price.
type SetBasis struct {
	Basis pricing.Basis
}

func (a SetBasis) apply(d *Draft) ([]Effect, error) {
	basis, err := pricing.ParseBasis(string(a.Basis))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidValue)
	}
	if basis == d.header.Basis {
		return nil, nil
	}
	d.header.Basis = basis
	pct := d.SurchargePercent()
	d.reprice(func(l NormalLine) decimal.Decimal {
		return pricing.RecomputeFromBase(basis, l.product.Prices(), pct)
	})
	return nil, nil
}

// reprice replaces the unit price of every normal line with a product.
func (d *Draft) reprice(price func(NormalLine) decimal.Decimal) {
	for i, line := range d.lines {
		l, ok := line.(NormalLine)
		if !ok || !l.hasProduct {
			continue
		}
		l.unitPrice = price(l)
		d.lines[i] = l
	}
}

// promotionEffects asks for a lookup when the line qualifies, otherwise it
// drops the offered line right away.
func (d *Draft) promotionEffects(l NormalLine) []Effect {
	if !promotion.NeedsLookup(l.hasProduct, l.quantity) {
		d.dropOffered(l.id)
		return nil
	}
	return []Effect{PromotionCheck{
		LineID:     l.id,
		Version:    l.version,
		ProductID:  l.product.ID,
		ProductRef: l.product.Reference,
		Quantity:   l.quantity,
	}}
}
