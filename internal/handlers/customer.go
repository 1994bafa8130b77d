package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

type CustomerStore interface {
	Create(ctx context.Context, req models.CreateCustomerRequest) (*models.Customer, error)
	GetAll(ctx context.Context) ([]models.Customer, error)
	GetByUsername(ctx context.Context, username string) (*models.Customer, error)
	Update(ctx context.Context, username string, req models.UpdateCustomerRequest) (*models.Customer, error)
	Deactivate(ctx context.Context, username string) error
	GetWallet(ctx context.Context, username string) (*models.WalletResponse, error)
	Deduct(ctx context.Context, username string, amount decimal.Decimal, key string) (*models.WalletResponse, error)
	Credit(ctx context.Context, username string, amount decimal.Decimal, key string) (*models.WalletResponse, error)
	Refund(ctx context.Context, username string, amount decimal.Decimal, debitKey string) (*models.WalletResponse, error)
}

type CustomerHandler struct {
	store CustomerStore
}

func NewCustomerHandler(store CustomerStore) *CustomerHandler {
	return &CustomerHandler{store: store}
}

func (h *CustomerHandler) Register(r gin.IRoutes) {
	r.POST("/customers", h.CreateCustomer)
	r.GET("/customers", h.ListCustomers)
	r.GET("/customers/:username", h.GetCustomer)
	r.PUT("/customers/:username", h.UpdateCustomer)
	r.DELETE("/customers/:username", h.DeleteCustomer)
	r.GET("/customers/:username/wallet", h.GetWallet)
	r.POST("/customers/:username/charge", h.Charge)
	r.POST("/customers/:username/deduct", h.Deduct)
	r.POST("/customers/:username/refund", h.Refund)
}

func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	var req models.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}

	customer, err := h.store.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	customers, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	username := c.Param("username")
	customer, err := h.store.GetByUsername(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}
	if customer == nil {
		respondError(c, apperr.New(apperr.CodeCustomerNotFound, "customer not found").With("customer_id", username))
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	var req models.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}

	customer, err := h.store.Update(c.Request.Context(), c.Param("username"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *CustomerHandler) DeleteCustomer(c *gin.Context) {
	if err := h.store.Deactivate(c.Request.Context(), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "customer deactivated"})
}

func (h *CustomerHandler) GetWallet(c *gin.Context) {
	wallet, err := h.store.GetWallet(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

type walletOp func(ctx context.Context, username string, amount decimal.Decimal, key string) (*models.WalletResponse, error)

func (h *CustomerHandler) walletOperation(c *gin.Context, op walletOp) {
	var req models.WalletOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}
	if !req.Amount.IsPositive() {
		respondError(c, apperr.New(apperr.CodeValidation, "amount must be positive"))
		return
	}
	if !models.WholeCents(req.Amount) {
		respondError(c, apperr.New(apperr.CodeValidation, "amount must have at most 2 decimal places"))
		return
	}

	wallet, err := op(c.Request.Context(), c.Param("username"), req.Amount, c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// Charge tops up the wallet.
func (h *CustomerHandler) Charge(c *gin.Context) { h.walletOperation(c, h.store.Credit) }

// Deduct debits the wallet; the balance is rechecked under lock.
func (h *CustomerHandler) Deduct(c *gin.Context) { h.walletOperation(c, h.store.Deduct) }

// Refund reverses the debit named by the Idempotency-Key header.
func (h *CustomerHandler) Refund(c *gin.Context) { h.walletOperation(c, h.store.Refund) }
