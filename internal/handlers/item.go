package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

type ItemStore interface {
	GetAll(ctx context.Context) ([]models.Item, error)
	GetByID(ctx context.Context, id int) (*models.Item, error)
	GetByIDFresh(ctx context.Context, id int) (*models.Item, error)
	Create(ctx context.Context, req models.CreateItemRequest) (*models.Item, error)
	Update(ctx context.Context, id int, req models.UpdateItemRequest) (*models.Item, error)
	Delete(ctx context.Context, id int) error
	DeductStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error)
	AddStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error)
	ReleaseStock(ctx context.Context, id, quantity int, deductKey string) (*models.StockResponse, error)
}

type ItemHandler struct {
	store ItemStore
}

func NewItemHandler(store ItemStore) *ItemHandler {
	return &ItemHandler{store: store}
}

func (h *ItemHandler) Register(r gin.IRoutes) {
	r.POST("/items", h.CreateItem)
	r.GET("/items", h.ListItems)
	r.GET("/items/:id", h.GetItem)
	r.PUT("/items/:id", h.UpdateItem)
	r.DELETE("/items/:id", h.DeleteItem)
	r.POST("/items/:id/deduct", h.DeductStock)
	r.POST("/items/:id/add-stock", h.AddStock)
	r.POST("/items/:id/release", h.ReleaseStock)
}

func itemNotFound(id int) error {
	return apperr.Newf(apperr.CodeItemNotFound, "item %d not found", id).With("item_id", id)
}

func (h *ItemHandler) ListItems(c *gin.Context) {
	items, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	// Callers that price a purchase from this read ask for the stored row.
	get := h.store.GetByID
	if strings.Contains(c.GetHeader("Cache-Control"), "no-cache") {
		get = h.store.GetByIDFresh
	}
	item, err := get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		respondError(c, itemNotFound(id))
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) CreateItem(c *gin.Context) {
	var req models.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}
	if !req.Price.IsPositive() {
		respondError(c, apperr.New(apperr.CodeValidation, "price must be positive"))
		return
	}
	if !models.WholeCents(req.Price) {
		respondError(c, apperr.New(apperr.CodeValidation, "price must have at most 2 decimal places"))
		return
	}

	item, err := h.store.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *ItemHandler) UpdateItem(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}
	if req.Price != nil && !req.Price.IsPositive() {
		respondError(c, apperr.New(apperr.CodeValidation, "price must be positive"))
		return
	}
	if req.Price != nil && !models.WholeCents(*req.Price) {
		respondError(c, apperr.New(apperr.CodeValidation, "price must have at most 2 decimal places"))
		return
	}

	item, err := h.store.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) DeleteItem(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item deleted"})
}

type stockOp func(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error)

func (h *ItemHandler) stockOperation(c *gin.Context, op stockOp) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req models.StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(err))
		return
	}
	if req.Quantity <= 0 {
		respondError(c, apperr.New(apperr.CodeValidation, "quantity must be a positive integer"))
		return
	}

	resp, err := op(c.Request.Context(), id, req.Quantity, c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ItemHandler) DeductStock(c *gin.Context)  { h.stockOperation(c, h.store.DeductStock) }
func (h *ItemHandler) AddStock(c *gin.Context)     { h.stockOperation(c, h.store.AddStock) }
func (h *ItemHandler) ReleaseStock(c *gin.Context) { h.stockOperation(c, h.store.ReleaseStock) }
