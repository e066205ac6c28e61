package sortie

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/pricing"
)

var (
	// ErrLineNotFound indicates the referenced line is not part of the draft.
	ErrLineNotFound = errors.New("sortie: line not found")
	// ErrOfferedLineReadOnly rejects user edits of a promotion line.
	ErrOfferedLineReadOnly = errors.New("sortie: offered lines cannot be edited")
	// ErrInvalidValue indicates a field value that cannot be applied.
	ErrInvalidValue = errors.New("sortie: invalid value")
	// ErrProductInactive rejects selecting a deactivated product.
	ErrProductInactive = errors.New("sortie: product is inactive")
	// ErrUnknownField indicates an unsupported field name.
	ErrUnknownField = errors.New("sortie: unknown field")
	// ErrStaleResult reports a promotion result that no longer matches its source line.
	ErrStaleResult = errors.New("sortie: stale promotion result")
)

// DateLayout is the accepted header date format.
const DateLayout = "2006-01-02"

// Header holds the draft header fields.
type Header struct {
	OrderNumber     string        `json:"orderNumber"`
	ClientID        string        `json:"clientId"`
	CommercialID    string        `json:"commercialId"`
	Date            string        `json:"date"`
	DeliveryAgentID string        `json:"deliveryAgentId"`
	Basis           pricing.Basis `json:"basis"`
	// CashDiscountPercent overrides the client default when valid.
	CashDiscountPercent decimal.NullDecimal `json:"cashDiscountPercent"`
	FlatDiscount        decimal.Decimal     `json:"flatDiscount"`
	QuarterlyDiscount   decimal.Decimal     `json:"quarterlyDiscount"`
	ValueAdjustment     decimal.Decimal     `json:"valueAdjustment"`
	ReturnAdjustment    decimal.Decimal     `json:"returnAdjustment"`
}

// Draft is the immutable order aggregate. Use Apply to derive a new draft.
type Draft struct {
	header    Header
	client    catalog.Client
	hasClient bool
	mode      pricing.SurchargeMode
	lines     []Line
	// links maps a source line id to the id of its offered line.
	links map[string]string
}

// NewDraft returns an empty draft valued at sale prices. mode selects how
// prices react to a client surcharge change.
func NewDraft(mode pricing.SurchargeMode) Draft {
	if mode == "" {
		mode = pricing.SurchargeFromBase
	}
	return Draft{
		header: Header{Basis: pricing.BasisSale},
		mode:   mode,
		links:  map[string]string{},
	}
}

func (d Draft) clone() Draft {
	out := d
	out.lines = make([]Line, len(d.lines))
	copy(out.lines, d.lines)
	out.links = make(map[string]string, len(d.links))
	for k, v := range d.links {
		out.links[k] = v
	}
	return out
}

// Header returns the header fields.
func (d Draft) Header() Header { return d.header }

// Client returns the selected client.
func (d Draft) Client() (catalog.Client, bool) { return d.client, d.hasClient }

// SurchargeMode returns the repricing policy applied on client switches.
func (d Draft) SurchargeMode() pricing.SurchargeMode { return d.mode }

// Lines returns the lines in collection order.
func (d Draft) Lines() []Line {
	out := make([]Line, len(d.lines))
	copy(out, d.lines)
	return out
}

// Line returns the line with the given id.
func (d Draft) Line(id string) (Line, bool) {
	if i := d.indexOf(id); i >= 0 {
		return d.lines[i], true
	}
	return nil, false
}

// OfferedFor returns the id of the offered line generated by sourceID.
func (d Draft) OfferedFor(sourceID string) (string, bool) {
	id, ok := d.links[sourceID]
	return id, ok
}

// SourceOf returns the id of the line that generated offeredID.
func (d Draft) SourceOf(offeredID string) (string, bool) {
	for src, off := range d.links {
		if off == offeredID {
			return src, true
		}
	}
	return "", false
}

// LineState returns the lifecycle state of a line.
func (d Draft) LineState(id string) (LineState, error) {
	l, ok := d.Line(id)
	if !ok {
		return "", ErrLineNotFound
	}
	if l.Offered() {
		return StateOffered, nil
	}
	if _, has := d.links[id]; has {
		return StateHasPromotion, nil
	}
	if _, has := l.Product(); has && l.Quantity().IsPositive() {
		return StatePopulated, nil
	}
	return StateBlank, nil
}

// SurchargePercent is the G/DG percentage of the selected client.
func (d Draft) SurchargePercent() decimal.Decimal {
	if !d.hasClient {
		return decimal.Zero
	}
	return d.client.Surcharge
}

// CashDiscountPercent is the explicit header value, else the client default.
func (d Draft) CashDiscountPercent() decimal.Decimal {
	if d.header.CashDiscountPercent.Valid {
		return d.header.CashDiscountPercent.Decimal
	}
	if d.hasClient {
		return d.client.CashDiscount
	}
	return decimal.Zero
}

// Totals computes the live totals at full precision.
func (d Draft) Totals() pricing.Summary {
	items := make([]pricing.Item, 0, len(d.lines))
	for _, l := range d.lines {
		items = append(items, pricing.Item{Quantity: l.Quantity(), UnitPrice: l.UnitPrice(), Weight: l.Weight()})
	}
	return pricing.Compute(items, pricing.Adjustments{
		CashDiscountPercent: d.CashDiscountPercent(),
		FlatDiscount:        d.header.FlatDiscount,
		QuarterlyDiscount:   d.header.QuarterlyDiscount,
		ValueAdjustment:     d.header.ValueAdjustment,
		ReturnAdjustment:    d.header.ReturnAdjustment,
	})
}

func (d Draft) indexOf(id string) int {
	for i, l := range d.lines {
		if l.ID() == id {
			return i
		}
	}
	return -1
}

func (d Draft) normal(id string) (NormalLine, int, error) {
	i := d.indexOf(id)
	if i < 0 {
		return NormalLine{}, -1, ErrLineNotFound
	}
	n, ok := d.lines[i].(NormalLine)
	if !ok {
		return NormalLine{}, -1, ErrOfferedLineReadOnly
	}
	return n, i, nil
}

// dropOffered removes the offered line linked to sourceID, if any.
func (d *Draft) dropOffered(sourceID string) {
	offeredID, ok := d.links[sourceID]
	if !ok {
		return
	}
	delete(d.links, sourceID)
	if i := d.indexOf(offeredID); i >= 0 {
		d.lines = append(d.lines[:i], d.lines[i+1:]...)
	}
}
