package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound indicates the requested record does not exist upstream.
var ErrNotFound = errors.New("catalog: not found")

// Source is the upstream read-only contract for catalogue records.
type Source interface {
	Product(ctx context.Context, id string) (Product, error)
	Client(ctx context.Context, id string) (Client, error)
	// PromotionRule reports found=false when no rule exists for the product.
	PromotionRule(ctx context.Context, productRef, contextTag string) (rule PromotionRule, found bool, err error)
}

// Service fronts a Source with a read-through cache.
type Service struct {
	source Source
	cache  *Cache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source Source
	Cache  *Cache
	Logger *zerolog.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{source: cfg.Source, cache: cfg.Cache, logger: logger}, nil
}

// Product loads a product by id.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, fmt.Errorf("product id required: %w", ErrNotFound)
	}
	var cached Product
	if ok, err := s.cache.GetJSON(ctx, productKey(id), &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("product_id", id).Msg("catalog cache read")
	}
	product, err := s.source.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	s.store(ctx, productKey(id), product)
	return product, nil
}

// Client loads a client by id.
func (s *Service) Client(ctx context.Context, id string) (Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Client{}, fmt.Errorf("client id required: %w", ErrNotFound)
	}
	var cached Client
	if ok, err := s.cache.GetJSON(ctx, clientKey(id), &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("client_id", id).Msg("catalog cache read")
	}
	client, err := s.source.Client(ctx, id)
	if err != nil {
		return Client{}, err
	}
	s.store(ctx, clientKey(id), client)
	return client, nil
}

type cachedRule struct {
	Found bool          `json:"found"`
	Rule  PromotionRule `json:"rule"`
}

// PromotionRule looks up the promotion rule of a product. Absent rules are cached as well.
func (s *Service) PromotionRule(ctx context.Context, productRef, contextTag string) (PromotionRule, bool, error) {
	productRef = strings.TrimSpace(productRef)
	if productRef == "" {
		return PromotionRule{}, false, nil
	}
	key := promotionKey(productRef, contextTag)
	var cached cachedRule
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached.Rule, cached.Found, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("product_ref", productRef).Msg("catalog cache read")
	}
	rule, found, err := s.source.PromotionRule(ctx, productRef, contextTag)
	if err != nil {
		return PromotionRule{}, false, err
	}
	s.store(ctx, key, cachedRule{Found: found, Rule: rule})
	return rule, found, nil
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if err := s.cache.SetJSON(ctx, key, v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write")
	}
}
