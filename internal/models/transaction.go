package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the side of a ledger entry.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// Transaction is one side of a balance movement on an account.
type Transaction struct {
	ID                 int64           `json:"id"`
	AccountID          int64           `json:"account_id"`
	CounterpartAccount *int64          `json:"counterpart_account_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Type               TransactionType `json:"type"`
	Description        string          `json:"description"`
	CreatedAt          time.Time       `json:"created_at"`
}
