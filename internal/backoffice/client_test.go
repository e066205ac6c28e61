package backoffice_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sortie/internal/backoffice"
	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/common"
	"github.com/noah-isme/backend-sortie/internal/sortie"
)

func newBackoffice(t *testing.T, handler http.HandlerFunc, markers ...string) *backoffice.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := backoffice.NewClient(backoffice.Config{BaseURL: srv.URL + "/api/", HTTPClient: srv.Client(), DuplicateMarkers: markers})
	require.NoError(t, err)
	return client
}

func TestClientReadsCatalogue(t *testing.T) {
	client := newBackoffice(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/p1":
			_, _ = io.WriteString(w, `{"id":"p1","reference":"REF-1","sale_price":"100.5","purchase_price":80,"unit_weight":0.5,"active":true}`)
		case "/api/clients/c1":
			_, _ = io.WriteString(w, `{"id":"c1","surcharge_percent":10,"cash_discount_percent":"2.5","commercial_id":"com-1"}`)
		case "/api/promotions":
			require.Equal(t, "REF-1", r.URL.Query().Get("product"))
			require.Equal(t, "sortie", r.URL.Query().Get("context"))
			_, _ = io.WriteString(w, `{"exists":true,"required_qty":5,"offered_product_id":"gift","offered_qty":1}`)
		case "/api/sorties/next-number":
			_, _ = io.WriteString(w, `{"number":"BL-000042"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	p, err := client.Product(ctx, "p1")
	require.NoError(t, err)
	require.True(t, p.SalePrice.Equal(decimal.RequireFromString("100.5")))
	require.True(t, p.Active)

	c, err := client.Client(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "com-1", c.CommercialID)
	require.True(t, c.CashDiscount.Equal(decimal.RequireFromString("2.5")))

	rule, found, err := client.PromotionRule(ctx, "REF-1", "sortie")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "gift", rule.OfferedProductID)

	number, err := client.NextOrderNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, "BL-000042", number)

	_, err = client.Product(ctx, "ghost")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestClientPromotionAbsent(t *testing.T) {
	client := newBackoffice(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"exists":false}`)
	})
	_, found, err := client.PromotionRule(context.Background(), "REF-9", "sortie")
	require.NoError(t, err)
	require.False(t, found)
}

func TestClientServerErrorIsUnavailable(t *testing.T) {
	client := newBackoffice(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.Client(context.Background(), "c1")
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "BACKOFFICE_UNAVAILABLE", appErr.Code)
	require.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
}

func TestClientSubmitAccepted(t *testing.T) {
	var got map[string]any
	client := newBackoffice(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sorties", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})
	err := client.Submit(context.Background(), sortie.Submission{OrderNumber: "BL-1", ClientID: "c1", Date: "2024-03-01"})
	require.NoError(t, err)
	require.Equal(t, "BL-1", got["order_number"])
	require.NotContains(t, got, "lineIDs")
}

func TestClientSubmitRejectedWithDuplicate(t *testing.T) {
	client := newBackoffice(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"The given data was invalid.","errors":{"order_number":["Ce numéro BL existe déjà"],"date":["required"]}}`)
	})
	err := client.Submit(context.Background(), sortie.Submission{OrderNumber: "BL-1"})
	require.ErrorIs(t, err, sortie.ErrDuplicateOrderNumber)
	var rej *sortie.RejectedError
	require.True(t, errors.As(err, &rej))
	require.Equal(t, "required", rej.Header["date"])
}

func TestClientSubmitRejectedWithoutDuplicate(t *testing.T) {
	client := newBackoffice(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"invalid","errors":{"depot":["closed"]}}`)
	}, "duplicate key")
	err := client.Submit(context.Background(), sortie.Submission{OrderNumber: "BL-1"})
	require.False(t, errors.Is(err, sortie.ErrDuplicateOrderNumber))
	var rej *sortie.RejectedError
	require.True(t, errors.As(err, &rej))
	require.Equal(t, "closed", rej.Header["depot"])
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := backoffice.NewClient(backoffice.Config{})
	require.Error(t, err)
}
