package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/ledger"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

// CreateUser stores the contact record notifications are delivered to.
func (s *Service) CreateUser(ctx context.Context, email, username string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "email is required")
	}
	user := &models.User{Email: email, Username: strings.TrimSpace(username)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Infof("User created: %d", user.ID)
	return user, nil
}

// CreateAccount opens an empty, enabled account for userID
func (s *Service) CreateAccount(ctx context.Context, userID int64) (*models.Account, error) {
	account := &models.Account{
		UserID:         userID,
		Amount:         decimal.Zero,
		ReservedAmount: decimal.Zero,
		Enabled:        true,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": account.ID, "user_id": userID}).Info("Account created")
	return account, nil
}

// ResolveAccount returns the account owned by the authenticated user.
func (s *Service) ResolveAccount(ctx context.Context, userID int64) (*models.Account, error) {
	return s.store.FindAccountByUserID(ctx, userID)
}

// GetAccount returns the caller's own account.
func (s *Service) GetAccount(ctx context.Context, caller, accountID int64) (*models.Account, error) {
	if err := requireCaller(caller, accountID); err != nil {
		return nil, err
	}
	return s.store.FindAccountByID(ctx, accountID)
}

// Deposit credits the caller's account with funds entering the system.
func (s *Service) Deposit(ctx context.Context, caller, accountID int64, amount decimal.Decimal) (*models.Account, error) {
	if err := requireCaller(caller, accountID); err != nil {
		return nil, err
	}
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	var account *models.Account
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := requireEnabled(current); err != nil {
			return err
		}
		account, err = ledger.Credit(ctx, tx, accountID, amount, "deposit")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.moved("deposit", amount)
	s.log.WithFields(logrus.Fields{"account_id": accountID, "amount": amount}).Info("Deposit credited")
	return account, nil
}

// DisableAccount stops the account from taking part in new commitments.
func (s *Service) DisableAccount(ctx context.Context, caller, accountID int64) (*models.Account, error) {
	if err := requireCaller(caller, accountID); err != nil {
		return nil, err
	}
	var account *models.Account
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		account, err = tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.Enabled {
			return apperrors.Newf(apperrors.CodeInvalidState, "account %d is already disabled", accountID)
		}
		account.Enabled = false
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to disable account %d: %w", accountID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("account_id", accountID).Info("Account disabled")
	return account, nil
}

// ListTransactions returns the ledger entries of the caller's account.
func (s *Service) ListTransactions(ctx context.Context, caller, accountID int64) ([]models.Transaction, error) {
	if err := requireCaller(caller, accountID); err != nil {
		return nil, err
	}
	if _, err := s.store.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, accountID)
}
