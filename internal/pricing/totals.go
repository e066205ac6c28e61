package pricing

import "github.com/shopspring/decimal"

// Item is one order line as seen by the totals computation.
type Item struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	// Weight is the display weight of the line.
	Weight decimal.Decimal
}

// Adjustments groups the header fields folded into the payable amount.
type Adjustments struct {
	CashDiscountPercent decimal.Decimal
	FlatDiscount        decimal.Decimal
	QuarterlyDiscount   decimal.Decimal
	ValueAdjustment     decimal.Decimal
	ReturnAdjustment    decimal.Decimal
}

// Summary aggregates computed totals at full precision.
type Summary struct {
	TotalGeneral        decimal.Decimal `json:"totalGeneral"`
	TotalWeight         decimal.Decimal `json:"totalWeight"`
	CashDiscountPercent decimal.Decimal `json:"cashDiscountPercent"`
	CashDiscountAmount  decimal.Decimal `json:"cashDiscountAmount"`
	FlatDiscount        decimal.Decimal `json:"flatDiscount"`
	QuarterlyDiscount   decimal.Decimal `json:"quarterlyDiscount"`
	ValueAdjustment     decimal.Decimal `json:"valueAdjustment"`
	ReturnAdjustment    decimal.Decimal `json:"returnAdjustment"`
	FinalAmount         decimal.Decimal `json:"finalAmount"`
}

// Compute calculates the order totals. Offered lines carry a zero unit price,
// so they add weight but no money.
func Compute(items []Item, adj Adjustments) Summary {
	total := decimal.Zero
	weight := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Quantity.Mul(it.UnitPrice))
		weight = weight.Add(it.Weight)
	}
	cash := total.Mul(adj.CashDiscountPercent).Div(hundred)
	final := total.
		Sub(cash).
		Sub(adj.FlatDiscount).
		Sub(adj.QuarterlyDiscount).
		Add(adj.ValueAdjustment).
		Add(adj.ReturnAdjustment)
	return Summary{
		TotalGeneral:        total,
		TotalWeight:         weight,
		CashDiscountPercent: adj.CashDiscountPercent,
		CashDiscountAmount:  cash,
		FlatDiscount:        adj.FlatDiscount,
		QuarterlyDiscount:   adj.QuarterlyDiscount,
		ValueAdjustment:     adj.ValueAdjustment,
		ReturnAdjustment:    adj.ReturnAdjustment,
		FinalAmount:         final,
	}
}

// Rounded returns a copy with every field rounded to two decimals, the
// precision handed over at submission time.
func (s Summary) Rounded() Summary {
	return Summary{
		TotalGeneral:        s.TotalGeneral.Round(2),
		TotalWeight:         s.TotalWeight.Round(2),
		CashDiscountPercent: s.CashDiscountPercent.Round(2),
		CashDiscountAmount:  s.CashDiscountAmount.Round(2),
		FlatDiscount:        s.FlatDiscount.Round(2),
		QuarterlyDiscount:   s.QuarterlyDiscount.Round(2),
		ValueAdjustment:     s.ValueAdjustment.Round(2),
		ReturnAdjustment:    s.ReturnAdjustment.Round(2),
		FinalAmount:         s.FinalAmount.Round(2),
	}
}
