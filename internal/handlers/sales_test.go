package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/purchase"
)

type mockPurchaser struct {
	requests []purchase.Request
	err      error
}

func (m *mockPurchaser) Submit(_ context.Context, req purchase.Request) (*models.Purchase, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	price := decimal.RequireFromString("99.99")
	return &models.Purchase{
		ID: 7, CustomerID: req.CustomerID, ItemID: req.ItemID, ItemName: "Laptop",
		Quantity: req.Quantity, PricePerItem: price, TotalPrice: price.Mul(decimal.NewFromInt(int64(req.Quantity))),
	}, nil
}

func (m *mockPurchaser) History(_ context.Context, customerID string) ([]models.Purchase, error) {
	return []models.Purchase{{ID: 2, CustomerID: customerID}, {ID: 1, CustomerID: customerID}}, nil
}

type mockCatalogue struct {
	items []models.Item
	err   error
}

func (m *mockCatalogue) ListItems(context.Context) ([]models.Item, error) { return m.items, m.err }

func (m *mockCatalogue) GetItem(_ context.Context, id int) (*models.Item, error) {
	for _, it := range m.items {
		if it.ID == id {
			return &it, nil
		}
	}
	return nil, apperr.New(apperr.CodeItemNotFound, "item not found")
}

func TestCreateSale(t *testing.T) {
	p := &mockPurchaser{}
	r := newRouter(NewSalesHandler(p, &mockCatalogue{}))

	w := doJSON(r, http.MethodPost, "/sales", `{"customer_id":"alice","item_id":1,"quantity":2}`,
		map[string]string{HeaderIdempotencyKey: "order-42"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_price":"199.98"`)
	require.Len(t, p.requests, 1)
	assert.Equal(t, purchase.Request{CustomerID: "alice", ItemID: 1, Quantity: 2, IdempotencyKey: "order-42"}, p.requests[0])
}

func TestCreateSaleDefaultsQuantity(t *testing.T) {
	p := &mockPurchaser{}
	r := newRouter(NewSalesHandler(p, &mockCatalogue{}))

	w := doJSON(r, http.MethodPost, "/sales", `{"customer_id":"alice","item_id":1}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, p.requests[0].Quantity)
}

func TestCreateSaleErrors(t *testing.T) {
	cases := map[apperr.Code]int{
		apperr.CodeInsufficientFunds:  http.StatusBadRequest,
		apperr.CodeItemNotFound:       http.StatusNotFound,
		apperr.CodeTransactionFailed:  http.StatusBadGateway,
		apperr.CodeCompensationFailed: http.StatusInternalServerError,
		apperr.CodeRequestInProgress:  http.StatusConflict,
		apperr.CodeIdempotencyReused:  http.StatusUnprocessableEntity,
	}
	for code, status := range cases {
		r := newRouter(NewSalesHandler(&mockPurchaser{err: apperr.New(code, "x")}, &mockCatalogue{}))
		w := doJSON(r, http.MethodPost, "/sales", `{"customer_id":"alice","item_id":1,"quantity":1}`, nil)
		assert.Equal(t, status, w.Code, code)
		assert.Equal(t, code, decodeError(t, w).Code)
	}
}

func TestCreateSaleMissingFields(t *testing.T) {
	p := &mockPurchaser{}
	r := newRouter(NewSalesHandler(p, &mockCatalogue{}))

	w := doJSON(r, http.MethodPost, "/sales", `{"item_id":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, p.requests)
}

func TestListAvailableItemsHidesSoldOut(t *testing.T) {
	r := newRouter(NewSalesHandler(&mockPurchaser{}, &mockCatalogue{items: []models.Item{
		{ID: 1, Name: "Laptop", Price: decimal.RequireFromString("99.99"), Stock: 3},
		{ID: 2, Name: "Mouse", Price: decimal.RequireFromString("9.99"), Stock: 0},
	}}))

	w := doJSON(r, http.MethodGet, "/items", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Laptop")
	assert.NotContains(t, w.Body.String(), "Mouse")
	assert.NotContains(t, w.Body.String(), "stock_count")
}

func TestListAvailableItemsInventoryDown(t *testing.T) {
	r := newRouter(NewSalesHandler(&mockPurchaser{}, &mockCatalogue{
		err: apperr.New(apperr.CodeServiceUnavailable, "inventory-service unavailable"),
	}))

	w := doJSON(r, http.MethodGet, "/items", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListPurchases(t *testing.T) {
	r := newRouter(NewSalesHandler(&mockPurchaser{}, &mockCatalogue{}))

	w := doJSON(r, http.MethodGet, "/purchases/alice", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"customer_id":"alice"`)
}
