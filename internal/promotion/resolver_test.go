package promotion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/promotion"
)

type stubRules struct {
	rule  catalog.PromotionRule
	found bool
	err   error
	tags  []string
}

func (s *stubRules) PromotionRule(_ context.Context, _ string, tag string) (catalog.PromotionRule, bool, error) {
	s.tags = append(s.tags, tag)
	return s.rule, s.found, s.err
}

type stubProducts map[string]catalog.Product

func (s stubProducts) Product(_ context.Context, id string) (catalog.Product, error) {
	p, ok := s[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func inline(fn func()) { fn() }

func request(qty int64) promotion.Request {
	return promotion.Request{LineID: "l1", Version: 3, ProductID: "p1", ProductRef: "REF-1", Quantity: decimal.NewFromInt(qty)}
}

func TestResolveAppliesRule(t *testing.T) {
	rules := &stubRules{found: true, rule: catalog.PromotionRule{
		RequiredQty: decimal.NewFromInt(5), OfferedQty: decimal.NewFromInt(1), OfferedProductID: "gift",
	}}
	resolver, err := promotion.NewResolver(promotion.Config{
		Rules:    rules,
		Products: stubProducts{"gift": {ID: "gift", UnitWeight: decimal.RequireFromString("0.25")}},
	})
	require.NoError(t, err)

	out, err := resolver.Resolve(context.Background(), request(12))
	require.NoError(t, err)
	require.NotNil(t, out.Offer)
	require.Equal(t, "l1", out.LineID)
	require.Equal(t, uint64(3), out.Version)
	require.True(t, out.Offer.Quantity.Equal(decimal.NewFromInt(2)))
	require.Equal(t, "gift", out.Offer.Product.ID)
	require.Equal(t, []string{promotion.DefaultContextTag}, rules.tags)
}

func TestResolveRemovesWhenNotApplicable(t *testing.T) {
	cases := map[string]struct {
		rules    *stubRules
		products stubProducts
		qty      int64
	}{
		"no rule":          {rules: &stubRules{}, qty: 10},
		"below threshold":  {rules: &stubRules{found: true, rule: catalog.PromotionRule{RequiredQty: decimal.NewFromInt(5), OfferedQty: decimal.NewFromInt(1), OfferedProductID: "gift"}}, products: stubProducts{"gift": {ID: "gift"}}, qty: 4},
		"unresolved gift":  {rules: &stubRules{found: true, rule: catalog.PromotionRule{RequiredQty: decimal.NewFromInt(5), OfferedQty: decimal.NewFromInt(1), OfferedProductID: "gone"}}, qty: 10},
		"missing gift id":  {rules: &stubRules{found: true, rule: catalog.PromotionRule{RequiredQty: decimal.NewFromInt(5), OfferedQty: decimal.NewFromInt(1)}}, qty: 10},
		"zero quantity":    {rules: &stubRules{}, qty: 0},
		"negative quantity": {rules: &stubRules{}, qty: -2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			products := tc.products
			if products == nil {
				products = stubProducts{}
			}
			resolver, err := promotion.NewResolver(promotion.Config{Rules: tc.rules, Products: products})
			require.NoError(t, err)
			out, err := resolver.Resolve(context.Background(), request(tc.qty))
			require.NoError(t, err)
			require.Nil(t, out.Offer)
			require.Equal(t, "l1", out.LineID)
		})
	}
}

func TestDispatchSwallowsLookupFailure(t *testing.T) {
	resolver, err := promotion.NewResolver(promotion.Config{
		Rules:    &stubRules{err: errors.New("backoffice down")},
		Products: stubProducts{},
		Run:      inline,
	})
	require.NoError(t, err)

	called := false
	resolver.Dispatch(context.Background(), request(12), func(promotion.Outcome) { called = true })
	require.False(t, called, "apply must not run when the lookup fails")
}

func TestDispatchSurvivesCancelledRequestContext(t *testing.T) {
	rules := &stubRules{found: true, rule: catalog.PromotionRule{
		RequiredQty: decimal.NewFromInt(2), OfferedQty: decimal.NewFromInt(1), OfferedProductID: "gift",
	}}
	resolver, err := promotion.NewResolver(promotion.Config{
		Rules:      rules,
		Products:   stubProducts{"gift": {ID: "gift"}},
		ContextTag: "depot",
		Run:        inline,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var got promotion.Outcome
	resolver.Dispatch(ctx, request(4), func(out promotion.Outcome) { got = out })
	require.NotNil(t, got.Offer)
	require.True(t, got.Offer.Quantity.Equal(decimal.NewFromInt(2)))
	require.Equal(t, []string{"depot"}, rules.tags)
}

func TestNewResolverRequiresLookups(t *testing.T) {
	_, err := promotion.NewResolver(promotion.Config{Products: stubProducts{}})
	require.Error(t, err)
	_, err = promotion.NewResolver(promotion.Config{Rules: &stubRules{}})
	require.Error(t, err)
}
