package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/microfin/internal/models"
)

const paymentColumns = `id, sender_account_id, receiver_account_id, amount, description, code, status, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p    models.Payment
		code sql.NullString
	)
	err := row.Scan(&p.ID, &p.SenderAccountID, &p.ReceiverAccountID, &p.Amount, &p.Description,
		&code, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		p.Code = &code.String
	}
	return &p, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreatePayment inserts a payment
func (r *Repository) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO bank.payments (sender_account_id, receiver_account_id, amount, description, code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.conn.QueryRowContext(ctx, query, p.SenderAccountID, p.ReceiverAccountID, p.Amount, p.Description,
		nullableString(p.Code), p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// FindPaymentByID retrieves a payment by id
func (r *Repository) FindPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM bank.payments WHERE id = $1`
	p, err := scanPayment(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return p, nil
}

// FindPaymentByCode retrieves a payment by its issued code
func (r *Repository) FindPaymentByCode(ctx context.Context, code string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM bank.payments WHERE code = $1`
	p, err := scanPayment(r.conn.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, notFound(err, "payment with code", code)
	}
	return p, nil
}

// LockPayment retrieves a payment and locks its row for the current transaction
func (r *Repository) LockPayment(ctx context.Context, id int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM bank.payments WHERE id = $1 FOR UPDATE`
	p, err := scanPayment(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return p, nil
}

// UpdatePayment persists the code and status of a payment
func (r *Repository) UpdatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE bank.payments
		SET code = $2, status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.conn.QueryRowContext(ctx, query, p.ID, nullableString(p.Code), p.Status).Scan(&p.UpdatedAt)
	if err != nil {
		return notFound(err, "payment", p.ID)
	}
	return nil
}
