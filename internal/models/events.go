package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseCompletedEvent is published after a purchase commits.
type PurchaseCompletedEvent struct {
	PurchaseID int64           `json:"purchase_id"`
	CustomerID string          `json:"customer_id"`
	ItemID     int             `json:"item_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// CompensationFailedEvent carries what is needed to refund a customer whose
// wallet was debited for a purchase that did not complete.
type CompensationFailedEvent struct {
	IdempotencyKey string          `json:"idempotency_key"`
	DebitKey       string          `json:"debit_key"`
	CustomerID     string          `json:"customer_id"`
	Amount         decimal.Decimal `json:"amount"`
	ItemID         int             `json:"item_id"`
	Quantity       int             `json:"quantity"`
	Reason         string          `json:"reason"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// StockReleaseEvent asks the inventory service to undo a keyed deduct.
type StockReleaseEvent struct {
	OperationKey string    `json:"operation_key"`
	ItemID       int       `json:"item_id"`
	Quantity     int       `json:"quantity"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// LedgerWriteFailedEvent carries a committed purchase whose ledger append failed.
type LedgerWriteFailedEvent struct {
	IdempotencyKey string    `json:"idempotency_key"`
	Purchase       Purchase  `json:"purchase"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}
