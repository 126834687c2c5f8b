package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentAccepted PaymentStatus = "ACCEPTED"
	PaymentDenied   PaymentStatus = "DENIED"
	PaymentFailed   PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentAccepted || s == PaymentDenied || s == PaymentFailed
}

// Payment is a point-to-point transfer confirmed by the receiver.
// Code is nil when the code gateway failed at creation.
type Payment struct {
	ID                int64           `json:"id"`
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Code              *string         `json:"code"`
	Status            PaymentStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
