package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is an immutable record of a committed sale. Name and price are
// snapshots taken when the purchase was made.
type Purchase struct {
	ID             int64           `json:"id"`
	CustomerID     string          `json:"customer_id"`
	ItemID         int             `json:"item_id"`
	ItemName       string          `json:"item_name"`
	Quantity       int             `json:"quantity"`
	PricePerItem   decimal.Decimal `json:"price_per_item"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	IdempotencyKey string          `json:"-"`
}

type PurchaseRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	ItemID     int    `json:"item_id" binding:"required"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

// Attempt statuses for idempotent purchase submissions.
const (
	AttemptInProgress         = "in_progress"
	AttemptCommitted          = "committed"
	AttemptFailed             = "failed"
	AttemptCompensationFailed = "compensation_failed"
)

// PurchaseAttempt tracks one idempotency key and its outcome.
type PurchaseAttempt struct {
	Key          string          `json:"idempotency_key"`
	CustomerID   string          `json:"customer_id"`
	ItemID       int             `json:"item_id"`
	Quantity     int             `json:"quantity"`
	Run          int             `json:"run"`
	Status       string          `json:"status"`
	Purchase     *Purchase       `json:"purchase,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Matches reports whether a resubmission carries the same request.
func (a *PurchaseAttempt) Matches(customerID string, itemID, quantity int) bool {
	return a.CustomerID == customerID && a.ItemID == itemID && a.Quantity == quantity
}

// DebitKey is the wallet operation key used by this run of the attempt.
func (a *PurchaseAttempt) DebitKey() string {
	return fmt.Sprintf("%s:%d:debit", a.Key, a.Run)
}

// StockKey is the stock operation key used by this run of the attempt.
func (a *PurchaseAttempt) StockKey() string {
	return fmt.Sprintf("%s:%d:stock", a.Key, a.Run)
}
