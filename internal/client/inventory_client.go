package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

const InventoryService = "inventory-service"

type InventoryClient struct {
	baseClient
}

func NewInventoryClient(resolver Resolver, timeout time.Duration) *InventoryClient {
	return &InventoryClient{baseClient: newBaseClient(InventoryService, resolver, timeout)}
}

// GetItem fetches an item from the Inventory Service. The read bypasses the
// inventory cache since purchases are priced from it.
func (c *InventoryClient) GetItem(ctx context.Context, itemID int) (*models.Item, error) {
	var item models.Item
	header := http.Header{"Cache-Control": []string{"no-cache"}}
	if err := c.send(ctx, http.MethodGet, fmt.Sprintf("/items/%d", itemID), nil, header, &item); err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// ListItems fetches the whole catalogue
func (c *InventoryClient) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	if err := c.do(ctx, http.MethodGet, "/items", nil, "", &items); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (c *InventoryClient) stockOperation(ctx context.Context, action string, itemID, quantity int, key string) (int, error) {
	var resp models.StockResponse
	path := fmt.Sprintf("/items/%d/%s", itemID, action)
	if err := c.do(ctx, http.MethodPost, path, models.StockRequest{Quantity: quantity}, key, &resp); err != nil {
		return 0, fmt.Errorf("%s stock: %w", action, err)
	}
	return resp.Stock, nil
}

// DeductStock removes quantity from stock; the inventory service rechecks availability.
func (c *InventoryClient) DeductStock(ctx context.Context, itemID, quantity int, key string) (int, error) {
	return c.stockOperation(ctx, "deduct", itemID, quantity, key)
}

func (c *InventoryClient) AddStock(ctx context.Context, itemID, quantity int, key string) (int, error) {
	return c.stockOperation(ctx, "add-stock", itemID, quantity, key)
}

// ReleaseStock undoes the deduct made under deductKey, if it was applied.
func (c *InventoryClient) ReleaseStock(ctx context.Context, itemID, quantity int, deductKey string) (int, error) {
	return c.stockOperation(ctx, "release", itemID, quantity, deductKey)
}
