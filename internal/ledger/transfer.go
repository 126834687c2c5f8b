// Package ledger holds the balance primitives every engine operation goes through: the
// two-account transfer, reservations and the fund guard.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

// Transfer atomically debits fromID and credits toID by amount and records both ledger entries.
// It does not check solvency; callers run HasSufficientFunds first. When called with a
// transactional store it joins the open transaction; accounts the caller locked earlier in
// that transaction must have been locked in ascending id order too.
func Transfer(ctx context.Context, store repository.Store, fromID, toID int64, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return apperrors.Newf(apperrors.CodeValidation, "transfer amount must be positive, got %s", amount)
	}
	if fromID == toID {
		return apperrors.New(apperrors.CodeValidation, "cannot transfer to the same account")
	}

	return store.WithTx(ctx, func(tx repository.Store) error {
		// Lock in id order so concurrent transfers between the same pair cannot deadlock.
		firstID, secondID := fromID, toID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}
		first, err := tx.LockAccount(ctx, firstID)
		if err != nil {
			return err
		}
		second, err := tx.LockAccount(ctx, secondID)
		if err != nil {
			return err
		}
		sender, receiver := first, second
		if sender.ID != fromID {
			sender, receiver = second, first
		}

		sender.Amount = sender.Amount.Sub(amount)
		receiver.Amount = receiver.Amount.Add(amount)
		if err := tx.UpdateAccount(ctx, sender); err != nil {
			return fmt.Errorf("failed to debit account %d: %w", sender.ID, err)
		}
		if err := tx.UpdateAccount(ctx, receiver); err != nil {
			return fmt.Errorf("failed to credit account %d: %w", receiver.ID, err)
		}

		debit := &models.Transaction{
			AccountID:          sender.ID,
			CounterpartAccount: &receiver.ID,
			Amount:             amount,
			Type:               models.TransactionDebit,
			Description:        description,
		}
		credit := &models.Transaction{
			AccountID:          receiver.ID,
			CounterpartAccount: &sender.ID,
			Amount:             amount,
			Type:               models.TransactionCredit,
			Description:        description,
		}
		if err := tx.CreateTransaction(ctx, debit); err != nil {
			return err
		}
		return tx.CreateTransaction(ctx, credit)
	})
}

// Credit adds amount to an account from outside the system (cash-in).
func Credit(ctx context.Context, store repository.Store, accountID int64, amount decimal.Decimal, description string) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Newf(apperrors.CodeValidation, "credit amount must be positive, got %s", amount)
	}
	var account *models.Account
	err := store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		account, err = tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		account.Amount = account.Amount.Add(amount)
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		return tx.CreateTransaction(ctx, &models.Transaction{
			AccountID:   accountID,
			Amount:      amount,
			Type:        models.TransactionCredit,
			Description: description,
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
