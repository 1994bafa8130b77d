package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Stock       int             `json:"stock_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ItemBrief is the public catalogue view of an item.
type ItemBrief struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type CreateItemRequest struct {
	Name        string          `json:"name" binding:"required"`
	Category    string          `json:"category" binding:"required,oneof=food clothes accessories electronics"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Stock       int             `json:"stock_count" binding:"gte=0"`
}

type UpdateItemRequest struct {
	Name        *string          `json:"name"`
	Category    *string          `json:"category" binding:"omitempty,oneof=food clothes accessories electronics"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	Stock       *int             `json:"stock_count" binding:"omitempty,gte=0"`
}

type StockRequest struct {
	Quantity int `json:"quantity"`
}

type StockResponse struct {
	ItemID  int  `json:"item_id"`
	Stock   int  `json:"stock_count"`
	Applied bool `json:"applied"`
}

// Stock operation kinds recorded in stock_operations.
const (
	StockOpDeduct = "deduct"
	StockOpAdd    = "add"
)
