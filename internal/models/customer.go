package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID            int             `json:"id"`
	Username      string          `json:"username"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	Age           *int            `json:"age,omitempty"`
	Address       string          `json:"address,omitempty"`
	Gender        string          `json:"gender,omitempty"`
	MaritalStatus string          `json:"marital_status,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CreateCustomerRequest struct {
	Username      string          `json:"username" binding:"required,min=3,max=64"`
	FullName      string          `json:"full_name" binding:"required"`
	Email         string          `json:"email" binding:"required,email"`
	Age           *int            `json:"age" binding:"omitempty,gte=0,lte=150"`
	Address       string          `json:"address"`
	Gender        string          `json:"gender" binding:"omitempty,oneof=male female other"`
	MaritalStatus string          `json:"marital_status" binding:"omitempty,oneof=single married divorced widowed"`
	Phone         string          `json:"phone"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
}

// UpdateCustomerRequest carries a partial profile update; nil fields are left unchanged.
type UpdateCustomerRequest struct {
	FullName      *string `json:"full_name"`
	Age           *int    `json:"age" binding:"omitempty,gte=0,lte=150"`
	Address       *string `json:"address"`
	Gender        *string `json:"gender" binding:"omitempty,oneof=male female other"`
	MaritalStatus *string `json:"marital_status" binding:"omitempty,oneof=single married divorced widowed"`
	Phone         *string `json:"phone"`
}

type WalletOperationRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type WalletResponse struct {
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
	// Applied is false when a keyed operation was a replay or a tombstone.
	Applied bool `json:"applied"`
}

// Wallet operation kinds recorded in wallet_operations.
const (
	WalletOpDebit  = "debit"
	WalletOpCredit = "credit"
	WalletOpRefund = "refund"
)
