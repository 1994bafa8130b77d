package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

const CustomerService = "customer-service"

type CustomerClient struct {
	baseClient
}

func NewCustomerClient(resolver Resolver, timeout time.Duration) *CustomerClient {
	return &CustomerClient{baseClient: newBaseClient(CustomerService, resolver, timeout)}
}

func walletPath(username, action string) string {
	return "/customers/" + url.PathEscape(username) + "/" + action
}

// GetBalance fetches the customer's wallet balance.
func (c *CustomerClient) GetBalance(ctx context.Context, username string) (decimal.Decimal, error) {
	var wallet models.WalletResponse
	if err := c.do(ctx, http.MethodGet, walletPath(username, "wallet"), nil, "", &wallet); err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return wallet.Balance, nil
}

func (c *CustomerClient) walletOperation(ctx context.Context, action, username string, amount decimal.Decimal, key string) (decimal.Decimal, error) {
	var wallet models.WalletResponse
	req := models.WalletOperationRequest{Amount: amount}
	if err := c.do(ctx, http.MethodPost, walletPath(username, action), req, key, &wallet); err != nil {
		return decimal.Zero, fmt.Errorf("%s wallet: %w", action, err)
	}
	return wallet.Balance, nil
}

// Deduct debits the wallet; the customer service rechecks the balance.
func (c *CustomerClient) Deduct(ctx context.Context, username string, amount decimal.Decimal, key string) (decimal.Decimal, error) {
	return c.walletOperation(ctx, "deduct", username, amount, key)
}

// Credit tops up the wallet.
func (c *CustomerClient) Credit(ctx context.Context, username string, amount decimal.Decimal, key string) (decimal.Decimal, error) {
	return c.walletOperation(ctx, "charge", username, amount, key)
}

// Refund reverses the debit made under debitKey, if it was applied.
func (c *CustomerClient) Refund(ctx context.Context, username string, amount decimal.Decimal, debitKey string) (decimal.Decimal, error) {
	return c.walletOperation(ctx, "refund", username, amount, debitKey)
}
