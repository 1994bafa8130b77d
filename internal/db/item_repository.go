package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

const itemColumns = `id, name, category, price, description, stock, created_at, updated_at`

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(database *PostgresDB) *ItemRepository {
	return &ItemRepository{db: database.Conn}
}

func scanItem(row rowScanner) (*models.Item, error) {
	var it models.Item
	err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Price, &it.Description, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func itemNotFound(id int) *apperr.Error {
	return apperr.New(apperr.CodeItemNotFound, "item not found").With("item_id", id)
}

// GetAll returns all items
func (r *ItemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// GetByID returns a single item, or nil if it does not exist
func (r *ItemRepository) GetByID(ctx context.Context, id int) (*models.Item, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

// Create inserts a new item
func (r *ItemRepository) Create(ctx context.Context, req models.CreateItemRequest) (*models.Item, error) {
	if !req.Price.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "price must be positive")
	}
	if !models.WholeCents(req.Price) {
		return nil, apperr.New(apperr.CodeValidation, "price must have at most 2 decimal places")
	}

	query := `
		INSERT INTO items (name, category, price, description, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + itemColumns

	it, err := scanItem(r.db.QueryRowContext(ctx, query, req.Name, req.Category, req.Price, req.Description, req.Stock))
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return it, nil
}

// Update applies a partial update
func (r *ItemRepository) Update(ctx context.Context, id int, req models.UpdateItemRequest) (*models.Item, error) {
	if req.Price != nil && !req.Price.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "price must be positive")
	}
	if req.Price != nil && !models.WholeCents(*req.Price) {
		return nil, apperr.New(apperr.CodeValidation, "price must have at most 2 decimal places")
	}

	query := `
		UPDATE items SET
			name        = COALESCE($2, name),
			category    = COALESCE($3, category),
			price       = COALESCE($4, price),
			description = COALESCE($5, description),
			stock       = COALESCE($6, stock),
			updated_at  = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id, req.Name, req.Category, req.Price, req.Description, req.Stock))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, itemNotFound(id)
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return it, nil
}

// Delete removes an item
func (r *ItemRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return itemNotFound(id)
	}
	return nil
}

// DeductStock removes quantity from stock, rechecking availability under the row lock.
func (r *ItemRepository) DeductStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error) {
	return r.applyStockOperation(ctx, models.StockOpDeduct, id, quantity, key)
}

// AddStock restocks an item.
func (r *ItemRepository) AddStock(ctx context.Context, id, quantity int, key string) (*models.StockResponse, error) {
	return r.applyStockOperation(ctx, models.StockOpAdd, id, quantity, key)
}

type stockOperation struct {
	itemID     int
	kind       string
	quantity   int
	stockAfter int
	released   bool
}

func lookupStockOperation(ctx context.Context, tx *sql.Tx, key string) (*stockOperation, error) {
	var op stockOperation
	err := tx.QueryRowContext(ctx, `
		SELECT item_id, kind, quantity, stock_after, released
		FROM stock_operations WHERE idempotency_key = $1 FOR UPDATE`, key,
	).Scan(&op.itemID, &op.kind, &op.quantity, &op.stockAfter, &op.released)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up stock operation: %w", err)
	}
	return &op, nil
}

func recordStockOperation(ctx context.Context, tx *sql.Tx, key string, op stockOperation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_operations (idempotency_key, item_id, kind, quantity, stock_after, released)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key, op.itemID, op.kind, op.quantity, op.stockAfter, op.released)
	if err != nil {
		return fmt.Errorf("failed to record stock operation: %w", err)
	}
	return nil
}

func lockItem(ctx context.Context, tx *sql.Tx, id int) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx, `SELECT stock FROM items WHERE id = $1 FOR UPDATE`, id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, itemNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock item: %w", err)
	}
	return stock, nil
}

func setStock(ctx context.Context, tx *sql.Tx, id, stock int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET stock = $1, updated_at = NOW() WHERE id = $2`, stock, id); err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return nil
}

func (r *ItemRepository) applyStockOperation(ctx context.Context, kind string, id, quantity int, key string) (*models.StockResponse, error) {
	if quantity <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be positive")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stock, err := lockItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if key != "" {
		prior, err := lookupStockOperation(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			if prior.itemID != id || prior.kind != kind || prior.quantity != quantity {
				return nil, apperr.New(apperr.CodeIdempotencyReused, "idempotency key already used for a different operation").
					With("idempotency_key", key)
			}
			if prior.released {
				return nil, apperr.New(apperr.CodeOperationCancelled, "operation was cancelled by a release").
					With("idempotency_key", key)
			}
			return &models.StockResponse{ItemID: id, Stock: prior.stockAfter}, nil
		}
	}

	switch kind {
	case models.StockOpDeduct:
		if stock < quantity {
			return nil, apperr.New(apperr.CodeInsufficientStock, "insufficient stock").
				With("item_id", id).
				With("requested", quantity).
				With("available", stock)
		}
		stock -= quantity
	case models.StockOpAdd:
		stock += quantity
	default:
		return nil, fmt.Errorf("unknown stock operation %q", kind)
	}

	if err := setStock(ctx, tx, id, stock); err != nil {
		return nil, err
	}
	if key != "" {
		op := stockOperation{itemID: id, kind: kind, quantity: quantity, stockAfter: stock}
		if err := recordStockOperation(ctx, tx, key, op); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.StockResponse{ItemID: id, Stock: stock, Applied: true}, nil
}

// ReleaseStock undoes the deduct recorded under deductKey. When no such
// deduct exists a released tombstone is stored, so a late deduct with the
// same key is rejected.
func (r *ItemRepository) ReleaseStock(ctx context.Context, id, quantity int, deductKey string) (*models.StockResponse, error) {
	if deductKey == "" {
		return nil, apperr.New(apperr.CodeValidation, "release requires the idempotency key of the deduct")
	}
	if quantity <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be positive")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stock, err := lockItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	deduct, err := lookupStockOperation(ctx, tx, deductKey)
	if err != nil {
		return nil, err
	}

	applied := false
	switch {
	case deduct == nil:
		tombstone := stockOperation{itemID: id, kind: models.StockOpDeduct, quantity: quantity, stockAfter: stock, released: true}
		if err := recordStockOperation(ctx, tx, deductKey, tombstone); err != nil {
			return nil, err
		}
	case deduct.itemID != id || deduct.kind != models.StockOpDeduct || deduct.quantity != quantity:
		return nil, apperr.New(apperr.CodeIdempotencyReused, "release does not match the recorded deduct").
			With("idempotency_key", deductKey)
	case deduct.released:
		// already released
	default:
		stock += deduct.quantity
		if err := setStock(ctx, tx, id, stock); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE stock_operations SET released = TRUE WHERE idempotency_key = $1`, deductKey); err != nil {
			return nil, fmt.Errorf("failed to mark deduct released: %w", err)
		}
		applied = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.StockResponse{ItemID: id, Stock: stock, Applied: applied}, nil
}
