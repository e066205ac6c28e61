package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/common"
	"github.com/noah-isme/backend-sortie/internal/resilience"
	"github.com/noah-isme/backend-sortie/internal/sortie"
)

// DefaultDuplicateMarkers are the message fragments identifying a duplicate order number.
var DefaultDuplicateMarkers = []string{"already exists", "existe déjà"}

// Config groups Client dependencies.
type Config struct {
	BaseURL string
	// HTTPClient defaults to a client with an otelhttp transport.
	HTTPClient *http.Client
	Breaker    *resilience.Breaker
	Timeout    time.Duration
	// DuplicateMarkers are matched case-insensitively against rejection messages.
	DuplicateMarkers []string
	Logger           *zerolog.Logger
}

// Client talks to the back-office HTTP API.
type Client struct {
	base    *url.URL
	http    resilience.HTTPClient
	breaker *resilience.Breaker
	markers []string
	logger  zerolog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("backoffice: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("backoffice: parse base url: %w", err)
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.5, 30*time.Second)
	}
	breaker = breaker.WithTarget("backoffice").WithLogger(logger)
	markers := make([]string, 0, len(cfg.DuplicateMarkers))
	for _, m := range cfg.DuplicateMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		markers = DefaultDuplicateMarkers
	}
	return &Client{
		base:    base,
		http:    resilience.HTTPClient{Client: httpClient, Breaker: breaker, Timeout: cfg.Timeout},
		breaker: breaker,
		markers: markers,
		logger:  logger,
	}, nil
}

type productDTO struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Name          string          `json:"name"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	UnitWeight    decimal.Decimal `json:"unit_weight"`
	Active        bool            `json:"active"`
}

type clientDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Surcharge    decimal.Decimal `json:"surcharge_percent"`
	CashDiscount decimal.Decimal `json:"cash_discount_percent"`
	CommercialID string          `json:"commercial_id"`
}

type promotionDTO struct {
	Exists           bool            `json:"exists"`
	RequiredQty      decimal.Decimal `json:"required_qty"`
	OfferedProductID string          `json:"offered_product_id"`
	OfferedQty       decimal.Decimal `json:"offered_qty"`
}

type rejectionDTO struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// Product implements catalog.Source.
func (c *Client) Product(ctx context.Context, id string) (catalog.Product, error) {
	var dto productDTO
	if err := c.get(ctx, "backoffice.Product", nil, &dto, "products", id); err != nil {
		return catalog.Product{}, err
	}
	return catalog.Product{
		ID:            dto.ID,
		Reference:     dto.Reference,
		Name:          dto.Name,
		SalePrice:     dto.SalePrice,
		PurchasePrice: dto.PurchasePrice,
		UnitWeight:    dto.UnitWeight,
		Active:        dto.Active,
	}, nil
}

// Client implements catalog.Source.
func (c *Client) Client(ctx context.Context, id string) (catalog.Client, error) {
	var dto clientDTO
	if err := c.get(ctx, "backoffice.Client", nil, &dto, "clients", id); err != nil {
		return catalog.Client{}, err
	}
	return catalog.Client{
		ID:           dto.ID,
		Name:         dto.Name,
		Surcharge:    dto.Surcharge,
		CashDiscount: dto.CashDiscount,
		CommercialID: dto.CommercialID,
	}, nil
}

// PromotionRule implements catalog.Source.
func (c *Client) PromotionRule(ctx context.Context, productRef, contextTag string) (catalog.PromotionRule, bool, error) {
	q := url.Values{}
	q.Set("product", productRef)
	q.Set("context", contextTag)
	var dto promotionDTO
	if err := c.get(ctx, "backoffice.PromotionRule", q, &dto, "promotions"); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.PromotionRule{}, false, nil
		}
		return catalog.PromotionRule{}, false, err
	}
	if !dto.Exists {
		return catalog.PromotionRule{}, false, nil
	}
	return catalog.PromotionRule{
		ProductRef:       productRef,
		RequiredQty:      dto.RequiredQty,
		OfferedProductID: dto.OfferedProductID,
		OfferedQty:       dto.OfferedQty,
	}, true, nil
}

// NextOrderNumber implements sortie.OrderNumberSource.
func (c *Client) NextOrderNumber(ctx context.Context) (string, error) {
	var dto struct {
		Number string `json:"number"`
	}
	if err := c.get(ctx, "backoffice.NextOrderNumber", nil, &dto, "sorties", "next-number"); err != nil {
		return "", err
	}
	number := strings.TrimSpace(dto.Number)
	if number == "" {
		return "", unavailable("next order number", errors.New("empty suggestion"))
	}
	return number, nil
}

// Submit implements sortie.Submitter. Validation refusals come back as
// *sortie.RejectedError.
func (c *Client) Submit(ctx context.Context, sub sortie.Submission) error {
	ctx, span := otel.Tracer("backoffice.Client").Start(ctx, "backoffice.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("sortie.order_number", sub.OrderNumber), attribute.Int("sortie.lines", len(sub.Lines)))

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("backoffice: encode submission: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint(nil, "sorties"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backoffice: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return unavailable("submit", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		var dto rejectionDTO
		if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
			return unavailable("decode rejection", err)
		}
		rej := sortie.MapRejection(sub, dto.Message, dto.Errors, c.isDuplicate(dto))
		span.SetAttributes(attribute.Bool("sortie.duplicate", rej.Duplicate))
		return rej
	default:
		err := fmt.Errorf("unexpected status %s", resp.Status)
		span.SetStatus(codes.Error, err.Error())
		return unavailable("submit", err)
	}
}

// Ready reports an error while the back-office breaker is open.
func (c *Client) Ready(context.Context) error {
	if c.breaker.State() == resilience.Open {
		return resilience.ErrOpenCircuit
	}
	return nil
}

func (c *Client) isDuplicate(dto rejectionDTO) bool {
	texts := []string{dto.Message}
	for _, msgs := range dto.Errors {
		texts = append(texts, msgs...)
	}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, marker := range c.markers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func (c *Client) get(ctx context.Context, op string, query url.Values, out any, segments ...string) error {
	ctx, span := otel.Tracer("backoffice.Client").Start(ctx, op)
	defer span.End()

	req, err := http.NewRequest(http.MethodGet, c.endpoint(query, segments...), nil)
	if err != nil {
		return fmt.Errorf("backoffice: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return unavailable(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", op, strings.Join(segments, "/"), catalog.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		err := fmt.Errorf("unexpected status %s", resp.Status)
		span.SetStatus(codes.Error, err.Error())
		return unavailable(op, err)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(op, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := c.base.JoinPath(segments...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func unavailable(op string, err error) error {
	return common.NewAppError("BACKOFFICE_UNAVAILABLE", "back office unavailable", http.StatusBadGateway, fmt.Errorf("backoffice: %s: %w", op, err))
}
