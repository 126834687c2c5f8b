package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
)

const accountColumns = `id, user_id, amount, reserved_amount, enabled, created_at, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(&account.ID, &account.UserID, &account.Amount, &account.ReservedAmount,
		&account.Enabled, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// CreateAccount creates a new account in the database
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO bank.accounts (user_id, amount, reserved_amount, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.conn.QueryRowContext(ctx, query, account.UserID, account.Amount, account.ReservedAmount, account.Enabled).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindAccountByID retrieves an account by id
func (r *Repository) FindAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts WHERE id = $1`
	account, err := scanAccount(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return account, nil
}

// FindAccountByUserID retrieves the account owned by a user
func (r *Repository) FindAccountByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts WHERE user_id = $1 ORDER BY id LIMIT 1`
	account, err := scanAccount(r.conn.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "account for user %d not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// LockAccount retrieves an account and locks its row for the current transaction
func (r *Repository) LockAccount(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return account, nil
}

// UpdateAccount persists balances and the enabled flag
func (r *Repository) UpdateAccount(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE bank.accounts
		SET amount = $2, reserved_amount = $3, enabled = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.conn.QueryRowContext(ctx, query, account.ID, account.Amount, account.ReservedAmount, account.Enabled).
		Scan(&account.UpdatedAt)
	if err != nil {
		return notFound(err, "account", account.ID)
	}
	return nil
}

// CreateTransaction records a ledger entry
func (r *Repository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	var counterpart sql.NullInt64
	if tx.CounterpartAccount != nil {
		counterpart = sql.NullInt64{Int64: *tx.CounterpartAccount, Valid: true}
	}
	query := `
		INSERT INTO bank.transactions (account_id, counterpart_account_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.conn.QueryRowContext(ctx, query, tx.AccountID, counterpart, tx.Amount, tx.Type, tx.Description).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the ledger entries of an account, newest first
func (r *Repository) ListTransactions(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, counterpart_account_id, amount, type, description, created_at
		FROM bank.transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.conn.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		var (
			tx          models.Transaction
			counterpart sql.NullInt64
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &counterpart, &tx.Amount, &tx.Type, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if counterpart.Valid {
			id := counterpart.Int64
			tx.CounterpartAccount = &id
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
