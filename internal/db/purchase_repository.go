package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

// PurchaseRepository is the append-only purchase ledger.
type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(database *PostgresDB) *PurchaseRepository {
	return &PurchaseRepository{db: database.Conn}
}

// Append records a committed purchase and fills in its id. Appending the same
// idempotency key twice returns the first record's id instead of a duplicate.
func (r *PurchaseRepository) Append(ctx context.Context, p *models.Purchase) error {
	key := sql.NullString{String: p.IdempotencyKey, Valid: p.IdempotencyKey != ""}

	query := `
		INSERT INTO purchases (idempotency_key, customer_id, item_id, item_name, quantity, price_per_item, total_price, purchase_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, purchase_date
	`
	err := r.db.QueryRowContext(ctx, query,
		key, p.CustomerID, p.ItemID, p.ItemName, p.Quantity, p.PricePerItem, p.TotalPrice, p.PurchaseDate,
	).Scan(&p.ID, &p.PurchaseDate)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to append purchase: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT id, purchase_date FROM purchases WHERE idempotency_key = $1`, key,
	).Scan(&p.ID, &p.PurchaseDate)
	if err != nil {
		return fmt.Errorf("failed to load existing purchase: %w", err)
	}
	return nil
}

// ListByCustomer returns a customer's purchases, newest first.
func (r *PurchaseRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.Purchase, error) {
	query := `
		SELECT id, COALESCE(idempotency_key, ''), customer_id, item_id, item_name, quantity, price_per_item, total_price, purchase_date
		FROM purchases
		WHERE customer_id = $1
		ORDER BY purchase_date DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []models.Purchase{}
	for rows.Next() {
		var p models.Purchase
		err := rows.Scan(&p.ID, &p.IdempotencyKey, &p.CustomerID, &p.ItemID, &p.ItemName,
			&p.Quantity, &p.PricePerItem, &p.TotalPrice, &p.PurchaseDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
