package backoffice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/catalog"
)

// Querier is the subset of pgxpool.Pool used by PGSource.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	productQuery = `SELECT id, reference, name, sale_price::text, purchase_price::text, unit_weight::text, active
FROM products WHERE id = $1`
	clientQuery = `SELECT id, name, surcharge_percent::text, cash_discount_percent::text, COALESCE(commercial_id, '')
FROM clients WHERE id = $1`
	promotionQuery = `SELECT required_qty::text, offered_product_id, offered_qty::text
FROM promotion_rules WHERE product_ref = $1 AND context = $2 AND active
ORDER BY updated_at DESC LIMIT 1`
	nextNumberQuery = `SELECT 'BL-' || LPAD((COALESCE(MAX(sequence), 0) + 1)::text, 6, '0') FROM sorties`
)

// PGSource reads catalogue records and order number suggestions from the
// back-office PostgreSQL database.
type PGSource struct {
	db Querier
}

// NewPGSource wraps db.
func NewPGSource(db Querier) (*PGSource, error) {
	if db == nil {
		return nil, errors.New("backoffice: querier is required")
	}
	return &PGSource{db: db}, nil
}

// Product implements catalog.Source.
func (s *PGSource) Product(ctx context.Context, id string) (catalog.Product, error) {
	var (
		p                          catalog.Product
		sale, purchase, unitWeight string
	)
	err := s.db.QueryRow(ctx, productQuery, id).Scan(&p.ID, &p.Reference, &p.Name, &sale, &purchase, &unitWeight, &p.Active)
	if err != nil {
		return catalog.Product{}, notFound("product", id, err)
	}
	if p.SalePrice, err = decimal.NewFromString(sale); err != nil {
		return catalog.Product{}, fmt.Errorf("backoffice: product %s sale price: %w", id, err)
	}
	if p.PurchasePrice, err = decimal.NewFromString(purchase); err != nil {
		return catalog.Product{}, fmt.Errorf("backoffice: product %s purchase price: %w", id, err)
	}
	if p.UnitWeight, err = decimal.NewFromString(unitWeight); err != nil {
		return catalog.Product{}, fmt.Errorf("backoffice: product %s unit weight: %w", id, err)
	}
	return p, nil
}

// Client implements catalog.Source.
func (s *PGSource) Client(ctx context.Context, id string) (catalog.Client, error) {
	var (
		c                   catalog.Client
		surcharge, discount string
	)
	err := s.db.QueryRow(ctx, clientQuery, id).Scan(&c.ID, &c.Name, &surcharge, &discount, &c.CommercialID)
	if err != nil {
		return catalog.Client{}, notFound("client", id, err)
	}
	if c.Surcharge, err = decimal.NewFromString(surcharge); err != nil {
		return catalog.Client{}, fmt.Errorf("backoffice: client %s surcharge: %w", id, err)
	}
	if c.CashDiscount, err = decimal.NewFromString(discount); err != nil {
		return catalog.Client{}, fmt.Errorf("backoffice: client %s cash discount: %w", id, err)
	}
	return c, nil
}

// PromotionRule implements catalog.Source.
func (s *PGSource) PromotionRule(ctx context.Context, productRef, contextTag string) (catalog.PromotionRule, bool, error) {
	var required, offered string
	rule := catalog.PromotionRule{ProductRef: productRef}
	err := s.db.QueryRow(ctx, promotionQuery, productRef, contextTag).Scan(&required, &rule.OfferedProductID, &offered)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.PromotionRule{}, false, nil
	}
	if err != nil {
		return catalog.PromotionRule{}, false, fmt.Errorf("backoffice: promotion rule %s: %w", productRef, err)
	}
	if rule.RequiredQty, err = decimal.NewFromString(required); err != nil {
		return catalog.PromotionRule{}, false, fmt.Errorf("backoffice: promotion rule %s required qty: %w", productRef, err)
	}
	if rule.OfferedQty, err = decimal.NewFromString(offered); err != nil {
		return catalog.PromotionRule{}, false, fmt.Errorf("backoffice: promotion rule %s offered qty: %w", productRef, err)
	}
	return rule, true, nil
}

// NextOrderNumber implements sortie.OrderNumberSource.
func (s *PGSource) NextOrderNumber(ctx context.Context) (string, error) {
	var number string
	if err := s.db.QueryRow(ctx, nextNumberQuery).Scan(&number); err != nil {
		return "", fmt.Errorf("backoffice: next order number: %w", err)
	}
	return number, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("backoffice: %s %s: %w", kind, id, catalog.ErrNotFound)
	}
	return fmt.Errorf("backoffice: load %s %s: %w", kind, id, err)
}
