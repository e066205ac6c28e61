package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeFinalAmount(t *testing.T) {
	items := []Item{
		{Quantity: d("4"), UnitPrice: d("200"), Weight: d("8")},
		{Quantity: d("2"), UnitPrice: d("100"), Weight: d("3.5")},
		{Quantity: d("1"), UnitPrice: decimal.Zero, Weight: d("0.5")},
	}
	summary := Compute(items, Adjustments{
		CashDiscountPercent: d("5"),
		FlatDiscount:        d("20"),
		QuarterlyDiscount:   d("10"),
		ValueAdjustment:     d("15"),
		ReturnAdjustment:    d("-5"),
	})
	if !summary.TotalGeneral.Equal(d("1000")) {
		t.Fatalf("expected total 1000, got %s", summary.TotalGeneral)
	}
	if !summary.CashDiscountAmount.Equal(d("50")) {
		t.Fatalf("expected cash discount 50, got %s", summary.CashDiscountAmount)
	}
	if !summary.FinalAmount.Equal(d("930")) {
		t.Fatalf("expected final 930, got %s", summary.FinalAmount)
	}
	if !summary.TotalWeight.Equal(d("12")) {
		t.Fatalf("expected weight 12 including offered line, got %s", summary.TotalWeight)
	}
}

func TestComputeKeepsFullPrecisionUntilRounded(t *testing.T) {
	items := []Item{
		{Quantity: d("3"), UnitPrice: d("3.3333")},
		{Quantity: d("0.5"), UnitPrice: d("1.111")},
	}
	summary := Compute(items, Adjustments{CashDiscountPercent: d("2.5")})
	want := d("3").Mul(d("3.3333")).Add(d("0.5").Mul(d("1.111")))
	if !summary.TotalGeneral.Equal(want) {
		t.Fatalf("expected exact sum %s, got %s", want, summary.TotalGeneral)
	}
	rounded := summary.Rounded()
	if !rounded.TotalGeneral.Equal(d("10.56")) {
		t.Fatalf("expected rounded total 10.56, got %s", rounded.TotalGeneral)
	}
	if rounded.CashDiscountAmount.Exponent() < -2 {
		t.Fatalf("expected at most two decimals, got %s", rounded.CashDiscountAmount)
	}
}

func TestComputeEmpty(t *testing.T) {
	summary := Compute(nil, Adjustments{ValueAdjustment: d("7")})
	if !summary.TotalGeneral.IsZero() || !summary.FinalAmount.Equal(d("7")) {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
