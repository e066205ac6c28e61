package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sortie/internal/catalog"
)

type countingSource struct {
	products   map[string]catalog.Product
	rules      map[string]catalog.PromotionRule
	productHit int
	ruleHit    int
}

func (s *countingSource) Product(_ context.Context, id string) (catalog.Product, error) {
	s.productHit++
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *countingSource) Client(_ context.Context, id string) (catalog.Client, error) {
	return catalog.Client{ID: id, Surcharge: decimal.NewFromInt(10)}, nil
}

func (s *countingSource) PromotionRule(_ context.Context, ref, _ string) (catalog.PromotionRule, bool, error) {
	s.ruleHit++
	r, ok := s.rules[ref]
	return r, ok, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestProductReadThroughCache(t *testing.T) {
	source := &countingSource{products: map[string]catalog.Product{
		"p1": {ID: "p1", Reference: "REF-1", SalePrice: decimal.RequireFromString("12.5"), Active: true},
	}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: source, Cache: catalog.NewCache(newRedis(t), time.Minute)})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := svc.Product(ctx, "p1")
	require.NoError(t, err)
	second, err := svc.Product(ctx, "p1")
	require.NoError(t, err)

	require.Equal(t, 1, source.productHit)
	require.True(t, first.SalePrice.Equal(second.SalePrice))
	require.Equal(t, "REF-1", second.Reference)
}

func TestProductNotFoundIsNotCached(t *testing.T) {
	source := &countingSource{}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: source, Cache: catalog.NewCache(newRedis(t), time.Minute)})
	require.NoError(t, err)

	_, err = svc.Product(context.Background(), "missing")
	require.True(t, errors.Is(err, catalog.ErrNotFound))
	_, err = svc.Product(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, 2, source.productHit)
}

func TestPromotionRuleCachesAbsence(t *testing.T) {
	source := &countingSource{rules: map[string]catalog.PromotionRule{}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: source, Cache: catalog.NewCache(newRedis(t), time.Minute)})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, found, err := svc.PromotionRule(context.Background(), "REF-9", "sortie")
		require.NoError(t, err)
		require.False(t, found)
	}
	require.Equal(t, 1, source.ruleHit)
}

func TestServiceWithoutCache(t *testing.T) {
	source := &countingSource{products: map[string]catalog.Product{"p1": {ID: "p1"}}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: source})
	require.NoError(t, err)

	_, err = svc.Product(context.Background(), "p1")
	require.NoError(t, err)
	_, err = svc.Product(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 2, source.productHit)

	_, err = catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}
