package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/obs"
)

// DefaultContextTag is sent with every lookup unless configured otherwise.
const DefaultContextTag = "sortie"

// RuleLookup fetches the promotion rule attached to a product reference.
type RuleLookup interface {
	PromotionRule(ctx context.Context, productRef, contextTag string) (catalog.PromotionRule, bool, error)
}

// ProductLookup resolves the offered product of a rule.
type ProductLookup interface {
	Product(ctx context.Context, id string) (catalog.Product, error)
}

// Request describes the source line state a resolution was started for.
type Request struct {
	LineID     string
	Version    uint64
	ProductID  string
	ProductRef string
	Quantity   decimal.Decimal
}

// Offer is the offered line a source line should carry.
type Offer struct {
	Product  catalog.Product
	Quantity decimal.Decimal
}

// Outcome is the result of a resolution. A nil Offer means the source line
// must not carry an offered line.
type Outcome struct {
	LineID  string
	Version uint64
	Offer   *Offer
}

// Config groups Resolver dependencies.
type Config struct {
	Rules      RuleLookup
	Products   ProductLookup
	ContextTag string
	// Timeout bounds a single resolution; zero applies none.
	Timeout time.Duration
	Logger  *zerolog.Logger
	// Run executes dispatched resolutions; nil starts a goroutine per call.
	Run func(func())
}

// Resolver evaluates promotion rules for source lines.
type Resolver struct {
	rules    RuleLookup
	products ProductLookup
	tag      string
	timeout  time.Duration
	logger   zerolog.Logger
	run      func(func())
}

// NewResolver validates the configuration and returns a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Rules == nil {
		return nil, errors.New("promotion: rule lookup is required")
	}
	if cfg.Products == nil {
		return nil, errors.New("promotion: product lookup is required")
	}
	tag := strings.TrimSpace(cfg.ContextTag)
	if tag == "" {
		tag = DefaultContextTag
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	run := cfg.Run
	if run == nil {
		run = func(fn func()) { go fn() }
	}
	return &Resolver{
		rules:    cfg.Rules,
		products: cfg.Products,
		tag:      tag,
		timeout:  cfg.Timeout,
		logger:   logger,
		run:      run,
	}, nil
}

// Resolve performs the lookup synchronously.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{LineID: req.LineID, Version: req.Version}
	if !NeedsLookup(req.ProductID != "", req.Quantity) {
		return out, nil
	}
	rule, found, err := r.rules.PromotionRule(ctx, req.ProductRef, r.tag)
	if err != nil {
		return Outcome{}, fmt.Errorf("promotion: lookup rule for %s: %w", req.ProductRef, err)
	}
	if !found {
		return out, nil
	}
	qty, ok := OfferedQuantity(rule, req.Quantity)
	if !ok || strings.TrimSpace(rule.OfferedProductID) == "" {
		return out, nil
	}
	offered, err := r.products.Product(ctx, rule.OfferedProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return out, nil
		}
		return Outcome{}, fmt.Errorf("promotion: resolve offered product %s: %w", rule.OfferedProductID, err)
	}
	out.Offer = &Offer{Product: offered, Quantity: qty}
	return out, nil
}

// Dispatch resolves req in the background and hands the outcome to apply.
// Failures are logged and apply is not called, leaving the draft untouched.
// In-flight resolutions are never cancelled; apply must discard stale
// outcomes by comparing versions.
func (r *Resolver) Dispatch(ctx context.Context, req Request, apply func(Outcome)) {
	ctx = context.WithoutCancel(ctx)
	logger := r.logger
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		logger = *ctxLogger
	}
	r.run(func() {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		ctx, span := otel.Tracer("promotion.Resolver").Start(ctx, "Resolver.Dispatch")
		defer span.End()
		span.SetAttributes(
			attribute.String("sortie.line_id", req.LineID),
			attribute.String("sortie.product_ref", req.ProductRef),
			attribute.Int64("sortie.line_version", int64(req.Version)),
		)

		start := time.Now()
		out, err := r.Resolve(ctx, req)
		result := resultLabel(out, err)
		obs.CountPromotion(result)
		if obs.PromotionLookupLatency != nil {
			obs.PromotionLookupLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "promotion lookup failed")
			logger.Warn().Err(err).
				Str("line_id", req.LineID).
				Str("product_ref", req.ProductRef).
				Uint64("version", req.Version).
				Msg("promotion_lookup_failed")
			return
		}
		apply(out)
	})
}

func resultLabel(out Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case out.Offer != nil:
		return "applied"
	default:
		return "removed"
	}
}
