package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db   *sql.DB
	conn dbtx
	inTx bool
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, conn: db}
}

// WithTx runs fn inside a database transaction, rolling back when fn fails.
func (r *Repository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&Repository{db: r.db, conn: sqlTx, inTx: true}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, created_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.conn.QueryRowContext(ctx, query, user.Username, user.Email).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByAccountID retrieves the owner of an account
func (r *Repository) FindUserByAccountID(ctx context.Context, accountID int64) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT u.id, u.username, u.email, u.created_at
		FROM bank.users u
		JOIN bank.accounts a ON a.user_id = u.id
		WHERE a.id = $1`
	err := r.conn.QueryRowContext(ctx, query, accountID).
		Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "user for account %d not found", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// notFound translates sql.ErrNoRows into a NotFound error.
func notFound(err error, entity string, id any) error {
	if err == sql.ErrNoRows {
		return apperrors.Newf(apperrors.CodeNotFound, "%s %v not found", entity, id)
	}
	return fmt.Errorf("failed to find %s: %w", entity, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}
