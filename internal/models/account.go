package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a balance record. Amount is the available balance, ReservedAmount the part of it
// earmarked for pending outgoing commitments.
type Account struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	ReservedAmount decimal.Decimal `json:"reserved_amount"`
	Enabled        bool            `json:"enabled"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Spendable returns the part of the balance not covered by reservations.
func (a *Account) Spendable() decimal.Decimal {
	return a.Amount.Sub(a.ReservedAmount)
}
