package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

const attemptColumns = `idempotency_key, customer_id, item_id, quantity, run, status, amount, purchase, error_code, error_message, created_at, updated_at`

// AttemptRepository records idempotent purchase submissions and their outcome.
type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(database *PostgresDB) *AttemptRepository {
	return &AttemptRepository{db: database.Conn}
}

func scanAttempt(row rowScanner) (*models.PurchaseAttempt, error) {
	var a models.PurchaseAttempt
	var purchase []byte
	err := row.Scan(&a.Key, &a.CustomerID, &a.ItemID, &a.Quantity, &a.Run, &a.Status, &a.Amount,
		&purchase, &a.ErrorCode, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(purchase) > 0 {
		var p models.Purchase
		if err := json.Unmarshal(purchase, &p); err != nil {
			return nil, fmt.Errorf("failed to decode stored purchase: %w", err)
		}
		p.IdempotencyKey = a.Key
		a.Purchase = &p
	}
	return &a, nil
}

// Begin claims the idempotency key for execution. It returns claimed=true
// when the caller may run the purchase: the key is new, or its previous
// attempt failed and carries the same request. A reclaimed attempt gets the
// next run number so its remote operation keys differ from the failed run.
// Otherwise the existing attempt is returned unchanged.
func (r *AttemptRepository) Begin(ctx context.Context, a models.PurchaseAttempt) (*models.PurchaseAttempt, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_attempts (idempotency_key, customer_id, item_id, quantity, run, status)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		a.Key, a.CustomerID, a.ItemID, a.Quantity, models.AttemptInProgress)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record attempt: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		a.Run = 1
		a.Status = models.AttemptInProgress
		return &a, true, nil
	}

	err = r.db.QueryRowContext(ctx, `
		UPDATE purchase_attempts
		SET status = $5, run = run + 1, error_code = '', error_message = '', updated_at = NOW()
		WHERE idempotency_key = $1 AND status = $6
		  AND customer_id = $2 AND item_id = $3 AND quantity = $4
		RETURNING run`,
		a.Key, a.CustomerID, a.ItemID, a.Quantity, models.AttemptInProgress, models.AttemptFailed).Scan(&a.Run)
	switch {
	case err == nil:
		a.Status = models.AttemptInProgress
		return &a, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("failed to reclaim attempt: %w", err)
	}

	existing, err := r.Get(ctx, a.Key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("attempt %s vanished while claiming", a.Key)
	}
	return existing, false, nil
}

// Get returns the attempt for key, or nil.
func (r *AttemptRepository) Get(ctx context.Context, key string) (*models.PurchaseAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM purchase_attempts WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// ListByStatus returns attempts in the given status, oldest first.
func (r *AttemptRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.PurchaseAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM purchase_attempts WHERE status = $1 ORDER BY created_at LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []models.PurchaseAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (r *AttemptRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.New(apperr.CodeNotFound, "purchase attempt not found").With("idempotency_key", args[0])
	}
	return nil
}

// MarkDebiting stores the amount about to be debited, before the debit is sent.
func (r *AttemptRepository) MarkDebiting(ctx context.Context, key string, amount decimal.Decimal) error {
	return r.update(ctx,
		`UPDATE purchase_attempts SET amount = $2, updated_at = NOW() WHERE idempotency_key = $1`,
		key, amount)
}

// MarkCommitted records the committed purchase. It applies to an attempt
// still in progress, or to a committed one whose ledger id is not yet known;
// a reversed attempt or a recorded ledger id is never overwritten.
func (r *AttemptRepository) MarkCommitted(ctx context.Context, key string, p *models.Purchase) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode purchase: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE purchase_attempts
		SET status = $2, purchase = $3, amount = $4, updated_at = NOW()
		WHERE idempotency_key = $1
		  AND (status = $5
		       OR (status = $2 AND COALESCE((purchase->>'id')::bigint, 0) = 0))`,
		key, models.AttemptCommitted, string(data), p.TotalPrice, models.AttemptInProgress)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.New(apperr.CodeConflict, "purchase attempt is not open for commit").
			With("idempotency_key", key)
	}
	return nil
}

func (r *AttemptRepository) MarkFailed(ctx context.Context, key string, code apperr.Code, message string) error {
	return r.update(ctx, `
		UPDATE purchase_attempts
		SET status = $2, error_code = $3, error_message = $4, updated_at = NOW()
		WHERE idempotency_key = $1`,
		key, models.AttemptFailed, string(code), message)
}

func (r *AttemptRepository) MarkCompensationFailed(ctx context.Context, key string, amount decimal.Decimal, message string) error {
	return r.update(ctx, `
		UPDATE purchase_attempts
		SET status = $2, amount = $3, error_code = $4, error_message = $5, updated_at = NOW()
		WHERE idempotency_key = $1`,
		key, models.AttemptCompensationFailed, amount, string(apperr.CodeCompensationFailed), message)
}
