package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

// HasSufficientFunds reports whether account can take on a new outgoing commitment of amount:
// amount + reservedAmount must not exceed the available amount.
func HasSufficientFunds(account *models.Account, amount decimal.Decimal) bool {
	return account.Amount.GreaterThanOrEqual(amount.Add(account.ReservedAmount))
}

// Reserve earmarks amount on a locked account after checking funds.
func Reserve(ctx context.Context, tx repository.Store, account *models.Account, amount decimal.Decimal) error {
	if !HasSufficientFunds(account, amount) {
		return apperrors.Newf(apperrors.CodeInsufficientFunds, "account %d cannot reserve %s", account.ID, amount)
	}
	account.ReservedAmount = account.ReservedAmount.Add(amount)
	return tx.UpdateAccount(ctx, account)
}

// Release returns a previously reserved amount to the spendable balance of a locked account.
func Release(ctx context.Context, tx repository.Store, account *models.Account, amount decimal.Decimal) error {
	if account.ReservedAmount.LessThan(amount) {
		return apperrors.Newf(apperrors.CodeInvalidState,
			"account %d has %s reserved, cannot release %s", account.ID, account.ReservedAmount, amount)
	}
	account.ReservedAmount = account.ReservedAmount.Sub(amount)
	return tx.UpdateAccount(ctx, account)
}
