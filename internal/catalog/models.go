package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/pricing"
)

// Product is the catalogue record a line can reference.
type Product struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Name          string          `json:"name,omitempty"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	UnitWeight    decimal.Decimal `json:"unitWeight"`
	Active        bool            `json:"active"`
}

// Prices exposes the base prices used by the pricing engine.
func (p Product) Prices() pricing.Prices {
	return pricing.Prices{Sale: p.SalePrice, Purchase: p.PurchasePrice}
}

// Client is the customer a sortie is delivered to.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Surcharge is the G/DG percentage added to unit prices.
	Surcharge decimal.Decimal `json:"surcharge"`
	// CashDiscount is the default remise ES percentage.
	CashDiscount decimal.Decimal `json:"cashDiscount"`
	CommercialID string          `json:"commercialId,omitempty"`
}

// PromotionRule offers OfferedQty units of OfferedProductID for every
// RequiredQty units bought.
type PromotionRule struct {
	ProductRef       string          `json:"productRef"`
	RequiredQty      decimal.Decimal `json:"requiredQty"`
	OfferedProductID string          `json:"offeredProductId"`
	OfferedQty       decimal.Decimal `json:"offeredQty"`
}
