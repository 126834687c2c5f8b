package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	DonationPending  DonationStatus = "PENDING"
	DonationAccepted DonationStatus = "ACCEPTED"
	DonationDenied   DonationStatus = "DENIED"
)

// IsTerminal reports whether no further transition is allowed.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationAccepted || s == DonationDenied
}

// Donation holds a reservation on the donor's account until the beneficiary decides.
type Donation struct {
	ID                 int64           `json:"id"`
	DonorAccount       int64           `json:"donor_account_id"`
	BeneficiaryAccount int64           `json:"beneficiary_account_id"`
	Amount             decimal.Decimal `json:"amount"`
	Status             DonationStatus  `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
