package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/purchase"
)

type Purchaser interface {
	Submit(ctx context.Context, req purchase.Request) (*models.Purchase, error)
	History(ctx context.Context, customerID string) ([]models.Purchase, error)
}

// Catalogue is the inventory read side exposed by the sales service.
type Catalogue interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, itemID int) (*models.Item, error)
}

type SalesHandler struct {
	purchases Purchaser
	catalogue Catalogue
}

func NewSalesHandler(purchases Purchaser, catalogue Catalogue) *SalesHandler {
	return &SalesHandler{purchases: purchases, catalogue: catalogue}
}

func (h *SalesHandler) Register(r gin.IRoutes) {
	r.POST("/sales", h.CreateSale)
	r.GET("/purchases/:customer_id", h.ListPurchases)
	r.GET("/items", h.ListAvailableItems)
	r.GET("/items/:id", h.GetItem)
}

// CreateSale runs a purchase. Resubmitting with the same Idempotency-Key
// returns the recorded outcome.
func (h *SalesHandler) CreateSale(c *gin.Context) {
	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	p, err := h.purchases.Submit(c.Request.Context(), purchase.Request{
		CustomerID:     req.CustomerID,
		ItemID:         req.ItemID,
		Quantity:       quantity,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *SalesHandler) ListPurchases(c *gin.Context) {
	purchases, err := h.purchases.History(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchases)
}

// ListAvailableItems returns name and price of every item in stock.
func (h *SalesHandler) ListAvailableItems(c *gin.Context) {
	items, err := h.catalogue.ListItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	available := []models.ItemBrief{}
	for _, item := range items {
		if item.Stock > 0 {
			available = append(available, models.ItemBrief{ID: item.ID, Name: item.Name, Price: item.Price})
		}
	}
	c.JSON(http.StatusOK, available)
}

func (h *SalesHandler) GetItem(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	item, err := h.catalogue.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
