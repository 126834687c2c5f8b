package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MicrocreditStatus is the lifecycle state of a microcredit.
type MicrocreditStatus string

const (
	MicrocreditPending   MicrocreditStatus = "PENDING"
	MicrocreditAccepted  MicrocreditStatus = "ACCEPTED"
	MicrocreditExpired   MicrocreditStatus = "EXPIRED"
	MicrocreditCompleted MicrocreditStatus = "COMPLETED"
)

// IsTerminal reports whether the microcredit can no longer change state.
func (s MicrocreditStatus) IsTerminal() bool {
	return s == MicrocreditExpired || s == MicrocreditCompleted
}

// Microcredit is a borrower's funding request collected from lender contributions.
//
// RemainingAmount is still open to contributions; PendingAmount has been collected
// from lenders and not yet repaid to them.
type Microcredit struct {
	ID              int64             `json:"id"`
	BorrowerAccount int64             `json:"borrower_account_id"`
	Amount          decimal.Decimal   `json:"amount"`
	RemainingAmount decimal.Decimal   `json:"remaining_amount"`
	PendingAmount   decimal.Decimal   `json:"pending_amount"`
	InterestRate    float64           `json:"interest_rate"`
	Installments    int               `json:"installments"`
	Description     string            `json:"description"`
	ExpirationDate  time.Time         `json:"expiration_date"`
	Status          MicrocreditStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ContributionStatus is the lifecycle state of a contribution.
type ContributionStatus string

const (
	ContributionAccepted  ContributionStatus = "ACCEPTED"
	ContributionCompleted ContributionStatus = "COMPLETED"
)

// Contribution is one lender's pledge toward a microcredit.
type Contribution struct {
	ID            int64              `json:"id"`
	MicrocreditID int64              `json:"microcredit_id"`
	LenderAccount int64              `json:"lender_account_id"`
	Amount        decimal.Decimal    `json:"amount"`
	Status        ContributionStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
