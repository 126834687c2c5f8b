package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/microfin/internal/models"
)

const donationColumns = `id, donor_account_id, beneficiary_account_id, amount, status, created_at, updated_at`

func scanDonation(row rowScanner) (*models.Donation, error) {
	var d models.Donation
	err := row.Scan(&d.ID, &d.DonorAccount, &d.BeneficiaryAccount, &d.Amount, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDonation inserts a donation. CreatedAt is taken from the record so that the
// timeout sweep and the creating engine share one clock.
func (r *Repository) CreateDonation(ctx context.Context, d *models.Donation) error {
	query := `
		INSERT INTO bank.donations (donor_account_id, beneficiary_account_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, updated_at`
	err := r.conn.QueryRowContext(ctx, query, d.DonorAccount, d.BeneficiaryAccount, d.Amount, d.Status, d.CreatedAt).
		Scan(&d.ID, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create donation: %w", err)
	}
	return nil
}

// FindDonationByID retrieves a donation by id
func (r *Repository) FindDonationByID(ctx context.Context, id int64) (*models.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM bank.donations WHERE id = $1`
	d, err := scanDonation(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "donation", id)
	}
	return d, nil
}

// LockDonation retrieves a donation and locks its row for the current transaction
func (r *Repository) LockDonation(ctx context.Context, id int64) (*models.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM bank.donations WHERE id = $1 FOR UPDATE`
	d, err := scanDonation(r.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "donation", id)
	}
	return d, nil
}

// UpdateDonation persists the status of a donation
func (r *Repository) UpdateDonation(ctx context.Context, d *models.Donation) error {
	query := `
		UPDATE bank.donations
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`
	if err := r.conn.QueryRowContext(ctx, query, d.ID, d.Status).Scan(&d.UpdatedAt); err != nil {
		return notFound(err, "donation", d.ID)
	}
	return nil
}

// FindPendingDonationsBefore returns PENDING donations created before cutoff
func (r *Repository) FindPendingDonationsBefore(ctx context.Context, cutoff time.Time) ([]models.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM bank.donations
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at, id`
	rows, err := r.conn.QueryContext(ctx, query, models.DonationPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query donations: %w", err)
	}
	defer rows.Close()

	var result []models.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}
