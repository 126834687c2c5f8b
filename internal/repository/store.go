package repository

import (
	"context"
	"time"

	"github.com/Dan9191/microfin/internal/models"
)

// AccountStore persists accounts, their owners and ledger entries.
type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByAccountID(ctx context.Context, accountID int64) (*models.User, error)

	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccountByID(ctx context.Context, id int64) (*models.Account, error)
	FindAccountByUserID(ctx context.Context, userID int64) (*models.Account, error)
	// LockAccount loads the account and holds its row until the surrounding transaction ends.
	LockAccount(ctx context.Context, id int64) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error

	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	ListTransactions(ctx context.Context, accountID int64) ([]models.Transaction, error)
}

// PaymentStore persists payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	FindPaymentByCode(ctx context.Context, code string) (*models.Payment, error)
	LockPayment(ctx context.Context, id int64) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
}

// MicrocreditStore persists microcredits and their contributions.
type MicrocreditStore interface {
	CreateMicrocredit(ctx context.Context, mc *models.Microcredit) error
	FindMicrocreditByID(ctx context.Context, id int64) (*models.Microcredit, error)
	LockMicrocredit(ctx context.Context, id int64) (*models.Microcredit, error)
	UpdateMicrocredit(ctx context.Context, mc *models.Microcredit) error
	ListMicrocreditsByStatus(ctx context.Context, status models.MicrocreditStatus) ([]models.Microcredit, error)
	// FindMicrocreditsExpiredBefore returns microcredits expiring strictly before date that are
	// neither EXPIRED nor COMPLETED.
	FindMicrocreditsExpiredBefore(ctx context.Context, date time.Time) ([]models.Microcredit, error)
	// FindMicrocreditsDueOn returns PENDING and ACCEPTED microcredits expiring on date.
	FindMicrocreditsDueOn(ctx context.Context, date time.Time) ([]models.Microcredit, error)
	CountMicrocreditsByBorrower(ctx context.Context, accountID int64, status models.MicrocreditStatus) (int, error)

	CreateContribution(ctx context.Context, c *models.Contribution) error
	ListContributions(ctx context.Context, microcreditID int64) ([]models.Contribution, error)
	UpdateContribution(ctx context.Context, c *models.Contribution) error
}

// DonationStore persists donations.
type DonationStore interface {
	CreateDonation(ctx context.Context, d *models.Donation) error
	FindDonationByID(ctx context.Context, id int64) (*models.Donation, error)
	LockDonation(ctx context.Context, id int64) (*models.Donation, error)
	UpdateDonation(ctx context.Context, d *models.Donation) error
	// FindPendingDonationsBefore returns PENDING donations created before cutoff.
	FindPendingDonationsBefore(ctx context.Context, cutoff time.Time) ([]models.Donation, error)
}

// Store is the persistence surface of the engine. Every read-modify-write of a balance or a
// lifecycle status runs inside WithTx with the affected rows locked.
type Store interface {
	AccountStore
	PaymentStore
	MicrocreditStore
	DonationStore

	// WithTx runs fn in a single transaction. Calling WithTx on a transactional Store runs fn
	// in the already open transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
