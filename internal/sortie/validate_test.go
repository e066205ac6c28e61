package sortie

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/promotion"
)

func submittable(t *testing.T) Draft {
	t.Helper()
	d := populated(t, "12")
	d, _ = mustApply(t, d,
		offerFor("l1", 2, "2"),
		SetHeaderField{Field: FieldOrderNumber, Value: "BL-0001"},
		SetHeaderField{Field: FieldDate, Value: "2024-03-01"},
	)
	return d
}

func TestValidateAcceptsCompleteDraft(t *testing.T) {
	v := Validate(submittable(t))
	require.True(t, v.CanSubmit, "%+v", v.Blockers)
	require.Empty(t, v.Blockers)
}

func TestValidateReportsMissingHeaderFields(t *testing.T) {
	v := Validate(NewDraft(""))
	require.False(t, v.CanSubmit)
	require.True(t, v.Has(ConditionMissingField))
	require.True(t, v.Has(ConditionNoValidLine))
	require.ElementsMatch(t, []string{"order_number", "client", "date"}, v.Blockers[0].Fields)
}

func TestValidateRequiresCommercial(t *testing.T) {
	d := submittable(t)
	d, _ = mustApply(t, d, SelectClient{Client: &catalog.Client{ID: "c2", Surcharge: d.SurchargePercent()}})
	v := Validate(d)
	require.False(t, v.CanSubmit)
	require.True(t, v.Has(ConditionNoCommercial))
}

func TestValidateFlagsIncompleteLinesOnlyWhenTouched(t *testing.T) {
	d := submittable(t)
	require.True(t, Validate(d).CanSubmit, "untouched blank line l2 must not block")

	d, _ = mustApply(t, d, SetLineQuantity{ID: "l2", Quantity: dec("3")})
	v := Validate(d)
	require.False(t, v.CanSubmit)
	require.True(t, v.Has(ConditionIncompleteLines))
	require.False(t, v.Has(ConditionNoValidLine))

	err := &BlockedError{Verdict: v}
	require.ErrorIs(t, err, ErrIncompleteLines)
	require.False(t, errors.Is(err, ErrNotSubmittable))
	require.Contains(t, err.Error(), "incomplete_lines")
}

func TestBuildSubmissionKeepsValidLinesRounded(t *testing.T) {
	d := submittable(t)
	d, _ = mustApply(t, d, SetLinePrice{ID: "l1", Price: dec("10.123")})
	sub := BuildSubmission(d)

	require.Equal(t, "BL-0001", sub.OrderNumber)
	require.Equal(t, "com-1", sub.CommercialID)
	require.Len(t, sub.Lines, 2)
	require.False(t, sub.Lines[0].Offered)
	requireDec(t, "11.14", sub.Lines[0].UnitPrice)
	require.True(t, sub.Lines[1].Offered)
	require.Equal(t, "gift", sub.Lines[1].ProductID)
	requireDec(t, "0", sub.Lines[1].UnitPrice)
	requireDec(t, "133.62", sub.Totals.TotalGeneral)

	id, ok := sub.LineID(1)
	require.True(t, ok)
	require.Equal(t, "o-l1", id)
	_, ok = sub.LineID(2)
	require.False(t, ok)
}

func TestMapRejectionTargetsDraftLines(t *testing.T) {
	sub := BuildSubmission(submittable(t))
	rej := MapRejection(sub, "invalid data", FieldErrors{
		"lines.0.quantity": {"must be positive"},
		"lines.9.quantity": {"out of range"},
		"date":             {"must be a working day"},
		"empty":            {},
	}, false)

	require.Equal(t, "must be positive", rej.Lines["l1"]["quantity"])
	require.Equal(t, "must be a working day", rej.Header["date"])
	require.Equal(t, "out of range", rej.Header["lines.9.quantity"])
	require.NotContains(t, rej.Header, "empty")
	require.NoError(t, rej.Unwrap())

	dup := MapRejection(sub, "order number already exists", nil, true)
	require.ErrorIs(t, dup, ErrDuplicateOrderNumber)
}

func TestLineStateLifecycle(t *testing.T) {
	d, _ := mustApply(t, NewDraft(""), AddLine{ID: "l1"})
	st, _ := d.LineState("l1")
	require.Equal(t, StateBlank, st)

	p := testProduct()
	d, _ = mustApply(t, d, SetLineProduct{ID: "l1", Product: &p})
	st, _ = d.LineState("l1")
	require.Equal(t, StatePopulated, st)

	d, _ = mustApply(t, d, SetPromotionResult{
		Outcome:   promotion.Outcome{LineID: "l1", Version: 1, Offer: &promotion.Offer{Product: giftProduct(), Quantity: dec("1")}},
		OfferedID: "o1",
	})
	st, _ = d.LineState("l1")
	require.Equal(t, StateHasPromotion, st)

	d, _ = mustApply(t, d, SetLineProduct{ID: "l1"})
	st, _ = d.LineState("l1")
	require.Equal(t, StateBlank, st)
	_, ok := d.Line("o1")
	require.False(t, ok, "clearing the product drops its offered line")
	l, _ := d.Line("l1")
	require.True(t, l.(NormalLine).Incomplete())

	d, _ = mustApply(t, d, RemoveLine{ID: "l1"})
	_, err := d.LineState("l1")
	require.ErrorIs(t, err, ErrLineNotFound)
	_, err = d.LineState("o1")
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestValidateBlocksLineWithClearedProduct(t *testing.T) {
	p := testProduct()
	d, _ := mustApply(t, submittable(t),
		AddLine{ID: "l3"},
		SetLineProduct{ID: "l3", Product: &p},
		SetLineProduct{ID: "l3"},
	)
	l, _ := d.Line("l3")
	requireDec(t, "110", l.UnitPrice())

	v := Validate(d)
	require.False(t, v.CanSubmit)
	require.True(t, v.Has(ConditionIncompleteLines))

	d, _ = mustApply(t, d, RemoveLine{ID: "l3"})
	require.True(t, Validate(d).CanSubmit)
	sub := BuildSubmission(d)
	sum := decimal.Zero
	for _, l := range d.Lines() {
		if l.Valid() {
			sum = sum.Add(l.Quantity().Mul(l.UnitPrice()))
		}
	}
	require.True(t, sum.Equal(d.Totals().TotalGeneral))
	requireDec(t, sum.Round(2).String(), sub.Totals.TotalGeneral)
}
