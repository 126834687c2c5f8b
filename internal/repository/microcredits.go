package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/microfin/internal/models"
)

const microcreditColumns = `id, borrower_account_id, amount, remaining_amount, pending_amount, interest_rate,
	installments, description, expiration_date, status, created_at, updated_at`

func scanMicrocredit(row rowScanner) (*models.Microcredit, error) {
	var mc models.Microcredit
	err := row.Scan(&mc.ID, &mc.BorrowerAccount, &mc.Amount, &mc.RemainingAmount, &mc.PendingAmount,
		&mc.InterestRate, &mc.Installments, &mc.Description, &mc.ExpirationDate, &mc.Status,
		&mc.CreatedAt, &mc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

func (r *Repository) queryMicrocredits(ctx context.Context, query string, args ...any) ([]models.Microcredit, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query microcredits: %w", err)
	}
	defer rows.Close()

	var result []models.Microcredit
	for rows.Next() {
		mc, err := scanMicrocredit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan microcredit: %w", err)
		}
		result = append(result, *mc)
	}
	return result, rows.Err()
}

// CreateMicrocredit inserts a microcredit
func (r *Repository) CreateMicrocredit(ctx context.Context, mc *models.Microcredit) error {
	query := `
		INSERT INTO bank.microcredits (borrower_account_id, amount, remaining_amount, pending_amount, interest_rate,
			installments, description, expiration_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.conn.QueryRowContext(ctx, query, mc.BorrowerAccount, mc.Amount, mc.RemainingAmount, mc.PendingAmount,
		mc.InterestRate, mc.Installments, mc.Description, mc.ExpirationDate, mc.Status).
		Scan(&mc.ID, &mc.CreatedAt, &mc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create microcredit: %w", err)
	}
	return nil
}

// FindMicrocreditByID retrieves a microcredit by id
func (r *Repository) FindMicrocreditByID(ctx context.Context, id int64) (*models.Microcredit, error) {
	query := `SELECT ` + microcreditColumns + ` FROM bank.microcredits WHERE id = $1`
	mc, err := scanMicrocredit(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "microcredit", id)
	}
	return mc, nil
}

// LockMicrocredit retrieves a microcredit and locks its row for the current transaction
func (r *Repository) LockMicrocredit(ctx context.Context, id int64) (*models.Microcredit, error) {
	query := `SELECT ` + microcreditColumns + ` FROM bank.microcredits WHERE id = $1 FOR UPDATE`
	mc, err := scanMicrocredit(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "microcredit", id)
	}
	return mc, nil
}

// UpdateMicrocredit persists the mutable amounts and the status of a microcredit
func (r *Repository) UpdateMicrocredit(ctx context.Context, mc *models.Microcredit) error {
	query := `
		UPDATE bank.microcredits
		SET remaining_amount = $2, pending_amount = $3, status = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	err := r.conn.QueryRowContext(ctx, query, mc.ID, mc.RemainingAmount, mc.PendingAmount, mc.Status).
		Scan(&mc.UpdatedAt)
	if err != nil {
		return notFound(err, "microcredit", mc.ID)
	}
	return nil
}

// ListMicrocreditsByStatus returns microcredits in the given status ordered by expiration
func (r *Repository) ListMicrocreditsByStatus(ctx context.Context, status models.MicrocreditStatus) ([]models.Microcredit, error) {
	query := `SELECT ` + microcreditColumns + ` FROM bank.microcredits WHERE status = $1 ORDER BY expiration_date, id`
	return r.queryMicrocredits(ctx, query, status)
}

// FindMicrocreditsExpiredBefore returns open microcredits whose expiration date is before date
func (r *Repository) FindMicrocreditsExpiredBefore(ctx context.Context, date time.Time) ([]models.Microcredit, error) {
	query := `SELECT ` + microcreditColumns + ` FROM bank.microcredits
		WHERE expiration_date < $1 AND status NOT IN ($2, $3)
		ORDER BY id`
	return r.queryMicrocredits(ctx, query, date, models.MicrocreditExpired, models.MicrocreditCompleted)
}

// FindMicrocreditsDueOn returns PENDING and ACCEPTED microcredits expiring on date
func (r *Repository) FindMicrocreditsDueOn(ctx context.Context, date time.Time) ([]models.Microcredit, error) {
	query := `SELECT ` + microcreditColumns + ` FROM bank.microcredits
		WHERE expiration_date = $1 AND status IN ($2, $3)
		ORDER BY id`
	return r.queryMicrocredits(ctx, query, date, models.MicrocreditPending, models.MicrocreditAccepted)
}

// CountMicrocreditsByBorrower counts a borrower's microcredits in the given status
func (r *Repository) CountMicrocreditsByBorrower(ctx context.Context, accountID int64, status models.MicrocreditStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM bank.microcredits WHERE borrower_account_id = $1 AND status = $2`
	if err := r.conn.QueryRowContext(ctx, query, accountID, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count microcredits: %w", err)
	}
	return count, nil
}

// CreateContribution inserts a contribution
func (r *Repository) CreateContribution(ctx context.Context, c *models.Contribution) error {
	query := `
		INSERT INTO bank.contributions (microcredit_id, lender_account_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.conn.QueryRowContext(ctx, query, c.MicrocreditID, c.LenderAccount, c.Amount, c.Status).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// ListContributions returns the contributions of a microcredit in creation order
func (r *Repository) ListContributions(ctx context.Context, microcreditID int64) ([]models.Contribution, error) {
	query := `
		SELECT id, microcredit_id, lender_account_id, amount, status, created_at, updated_at
		FROM bank.contributions
		WHERE microcredit_id = $1
		ORDER BY id`
	rows, err := r.conn.QueryContext(ctx, query, microcreditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var result []models.Contribution
	for rows.Next() {
		var c models.Contribution
		if err := rows.Scan(&c.ID, &c.MicrocreditID, &c.LenderAccount, &c.Amount, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpdateContribution persists the status of a contribution
func (r *Repository) UpdateContribution(ctx context.Context, c *models.Contribution) error {
	query := `
		UPDATE bank.contributions
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	if err := r.conn.QueryRowContext(ctx, query, c.ID, c.Status).Scan(&c.UpdatedAt); err != nil {
		return notFound(err, "contribution", c.ID)
	}
	return nil
}
