package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

const customerColumns = `id, username, full_name, email, age, address, gender, marital_status, phone, wallet_balance, is_active, created_at`

type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(database *PostgresDB) *CustomerRepository {
	return &CustomerRepository{db: database.Conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	var age sql.NullInt32
	err := row.Scan(&c.ID, &c.Username, &c.FullName, &c.Email, &age, &c.Address,
		&c.Gender, &c.MaritalStatus, &c.Phone, &c.WalletBalance, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int32)
		c.Age = &v
	}
	return &c, nil
}

func customerNotFound(username string) *apperr.Error {
	return apperr.New(apperr.CodeCustomerNotFound, "customer not found").With("customer_id", username)
}

// Create registers a new customer.
func (r *CustomerRepository) Create(ctx context.Context, req models.CreateCustomerRequest) (*models.Customer, error) {
	if req.WalletBalance.IsNegative() {
		return nil, apperr.New(apperr.CodeValidation, "wallet_balance must not be negative")
	}
	if !models.WholeCents(req.WalletBalance) {
		return nil, apperr.New(apperr.CodeValidation, "wallet_balance must have at most 2 decimal places")
	}

	query := `
		INSERT INTO customers (username, full_name, email, age, address, gender, marital_status, phone, wallet_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + customerColumns

	c, err := scanCustomer(r.db.QueryRowContext(ctx, query,
		req.Username, req.FullName, req.Email, req.Age, req.Address,
		req.Gender, req.MaritalStatus, req.Phone, req.WalletBalance,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.CodeConflict, "username or email already registered")
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return c, nil
}

// GetAll returns active customers.
func (r *CustomerRepository) GetAll(ctx context.Context) ([]models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE is_active ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

// GetByUsername returns an active customer, or nil if none exists.
func (r *CustomerRepository) GetByUsername(ctx context.Context, username string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE username = $1 AND is_active`

	c, err := scanCustomer(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// Update applies a partial profile update.
func (r *CustomerRepository) Update(ctx context.Context, username string, req models.UpdateCustomerRequest) (*models.Customer, error) {
	query := `
		UPDATE customers SET
			full_name      = COALESCE($2, full_name),
			age            = COALESCE($3, age),
			address        = COALESCE($4, address),
			gender         = COALESCE($5, gender),
			marital_status = COALESCE($6, marital_status),
			phone          = COALESCE($7, phone)
		WHERE username = $1 AND is_active
		RETURNING ` + customerColumns

	c, err := scanCustomer(r.db.QueryRowContext(ctx, query, username,
		req.FullName, req.Age, req.Address, req.Gender, req.MaritalStatus, req.Phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customerNotFound(username)
		}
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	return c, nil
}

// Deactivate soft-deletes a customer so purchase history keeps a valid reference.
func (r *CustomerRepository) Deactivate(ctx context.Context, username string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE customers SET is_active = FALSE WHERE username = $1 AND is_active`, username)
	if err != nil {
		return fmt.Errorf("failed to deactivate customer: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return customerNotFound(username)
	}
	return nil
}

// GetWallet returns the current balance of an active customer.
func (r *CustomerRepository) GetWallet(ctx context.Context, username string) (*models.WalletResponse, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT wallet_balance FROM customers WHERE username = $1 AND is_active`, username).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customerNotFound(username)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &models.WalletResponse{Username: username, Balance: balance}, nil
}

// Deduct debits the wallet. Sufficiency is checked under the row lock, so a
// stale balance read by the caller cannot overdraw the wallet.
func (r *CustomerRepository) Deduct(ctx context.Context, username string, amount decimal.Decimal, key string) (*models.WalletResponse, error) {
	return r.applyWalletOperation(ctx, models.WalletOpDebit, username, amount, key)
}

// Credit tops up the wallet.
func (r *CustomerRepository) Credit(ctx context.Context, username string, amount decimal.Decimal, key string) (*models.WalletResponse, error) {
	return r.applyWalletOperation(ctx, models.WalletOpCredit, username, amount, key)
}

type walletOperation struct {
	username     string
	kind         string
	amount       decimal.Decimal
	balanceAfter decimal.Decimal
	reversed     bool
}

func lookupWalletOperation(ctx context.Context, tx *sql.Tx, key string) (*walletOperation, error) {
	var op walletOperation
	err := tx.QueryRowContext(ctx, `
		SELECT username, kind, amount, balance_after, reversed
		FROM wallet_operations WHERE idempotency_key = $1 FOR UPDATE`, key,
	).Scan(&op.username, &op.kind, &op.amount, &op.balanceAfter, &op.reversed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet operation: %w", err)
	}
	return &op, nil
}

func recordWalletOperation(ctx context.Context, tx *sql.Tx, key string, op walletOperation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_operations (idempotency_key, username, kind, amount, balance_after, reversed)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key, op.username, op.kind, op.amount, op.balanceAfter, op.reversed)
	if err != nil {
		return fmt.Errorf("failed to record wallet operation: %w", err)
	}
	return nil
}

// lockCustomer takes the row lock that serialises every wallet mutation of one customer.
func lockCustomer(ctx context.Context, tx *sql.Tx, username string) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	var active bool
	err := tx.QueryRowContext(ctx,
		`SELECT wallet_balance, is_active FROM customers WHERE username = $1 FOR UPDATE`, username,
	).Scan(&balance, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, customerNotFound(username)
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to lock customer: %w", err)
	}
	return balance, active, nil
}

func (r *CustomerRepository) applyWalletOperation(ctx context.Context, kind, username string, amount decimal.Decimal, key string) (*models.WalletResponse, error) {
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "amount must be positive")
	}
	if !models.WholeCents(amount) {
		return nil, apperr.New(apperr.CodeValidation, "amount must have at most 2 decimal places")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, active, err := lockCustomer(ctx, tx, username)
	if err != nil {
		return nil, err
	}

	if key != "" {
		prior, err := lookupWalletOperation(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			if prior.username != username || prior.kind != kind || !prior.amount.Equal(amount) {
				return nil, apperr.New(apperr.CodeIdempotencyReused, "idempotency key already used for a different operation").
					With("idempotency_key", key)
			}
			if prior.reversed {
				return nil, apperr.New(apperr.CodeOperationCancelled, "operation was cancelled by a refund").
					With("idempotency_key", key)
			}
			return &models.WalletResponse{Username: username, Balance: prior.balanceAfter}, nil
		}
	}

	if !active {
		return nil, customerNotFound(username)
	}

	switch kind {
	case models.WalletOpDebit:
		if balance.LessThan(amount) {
			return nil, apperr.New(apperr.CodeInsufficientFunds, "insufficient funds for transaction").
				With("customer_id", username).
				With("required_amount", amount.String()).
				With("available_amount", balance.String())
		}
		balance = balance.Sub(amount)
	case models.WalletOpCredit:
		balance = balance.Add(amount)
	default:
		return nil, fmt.Errorf("unknown wallet operation %q", kind)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE customers SET wallet_balance = $1 WHERE username = $2`, balance, username); err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	if key != "" {
		op := walletOperation{username: username, kind: kind, amount: amount, balanceAfter: balance}
		if err := recordWalletOperation(ctx, tx, key, op); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.WalletResponse{Username: username, Balance: balance, Applied: true}, nil
}

// Refund reverses the debit recorded under debitKey. When no such debit
// exists a reversed tombstone is stored under the key, so a debit that
// arrives late is rejected instead of charging the customer.
func (r *CustomerRepository) Refund(ctx context.Context, username string, amount decimal.Decimal, debitKey string) (*models.WalletResponse, error) {
	if debitKey == "" {
		return nil, apperr.New(apperr.CodeValidation, "refund requires the idempotency key of the debit")
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.CodeValidation, "amount must be positive")
	}
	if !models.WholeCents(amount) {
		return nil, apperr.New(apperr.CodeValidation, "amount must have at most 2 decimal places")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Refunds ignore the active flag: a deactivated customer is still owed money.
	balance, _, err := lockCustomer(ctx, tx, username)
	if err != nil {
		return nil, err
	}

	debit, err := lookupWalletOperation(ctx, tx, debitKey)
	if err != nil {
		return nil, err
	}

	applied := false
	switch {
	case debit == nil:
		tombstone := walletOperation{username: username, kind: models.WalletOpDebit, amount: amount, balanceAfter: balance, reversed: true}
		if err := recordWalletOperation(ctx, tx, debitKey, tombstone); err != nil {
			return nil, err
		}
	case debit.username != username || debit.kind != models.WalletOpDebit || !debit.amount.Equal(amount):
		return nil, apperr.New(apperr.CodeIdempotencyReused, "refund does not match the recorded debit").
			With("idempotency_key", debitKey)
	case debit.reversed:
		// already refunded
	default:
		balance = balance.Add(debit.amount)
		if _, err := tx.ExecContext(ctx,
			`UPDATE customers SET wallet_balance = $1 WHERE username = $2`, balance, username); err != nil {
			return nil, fmt.Errorf("failed to update wallet: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallet_operations SET reversed = TRUE WHERE idempotency_key = $1`, debitKey); err != nil {
			return nil, fmt.Errorf("failed to mark debit reversed: %w", err)
		}
		applied = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.WalletResponse{Username: username, Balance: balance, Applied: applied}, nil
}
