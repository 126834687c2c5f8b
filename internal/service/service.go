// Package service implements the money-movement engine: account operations, the payment,
// microcredit and donation lifecycles and the scheduled sweeps that settle them.
package service

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/metrics"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

// Notifier delivers a message to a contact address.
type Notifier interface {
	Notify(to, subject, body string) error
}

// CodeGateway binds an opaque code to a payment identifier.
type CodeGateway interface {
	Generate(paymentID int64) (string, error)
	Parse(code string) (int64, error)
}

// RateProvider returns the annual interest rate, in percent, offered for new microcredits.
type RateProvider interface {
	GetKeyRate(ctx context.Context) (float64, error)
}

// Params holds the dependencies of Service. Rates, Metrics and Now are optional.
type Params struct {
	Store    repository.Store
	Log      *logrus.Logger
	Config   *config.Config
	Notifier Notifier
	Codes    CodeGateway
	Rates    RateProvider
	Metrics  *metrics.EngineMetrics
	Now      func() time.Time
}

// Service handles business logic
type Service struct {
	store    repository.Store
	log      *logrus.Logger
	config   *config.Config
	notifier Notifier
	codes    CodeGateway
	rates    RateProvider
	metrics  *metrics.EngineMetrics
	now      func() time.Time
	loc      *time.Location
}

// NewService initializes a new service
func NewService(p Params) *Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	log := p.Log
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		store:    p.Store,
		log:      log,
		config:   p.Config,
		notifier: p.Notifier,
		codes:    p.Codes,
		rates:    p.Rates,
		metrics:  p.Metrics,
		now:      now,
		loc:      p.Config.Location(),
	}
}

// today returns the current calendar date in the scheduler time zone as midnight UTC,
// the form dates are stored in.
func (s *Service) today() time.Time {
	return dateOf(s.now(), s.loc)
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// notify is best effort: delivery failures are logged and counted, never returned.
func (s *Service) notify(ctx context.Context, accountID int64, subject, body string) {
	if s.notifier == nil {
		return
	}
	user, err := s.store.FindUserByAccountID(ctx, accountID)
	if err != nil {
		s.metrics.Notification(err)
		s.log.WithError(err).WithField("account_id", accountID).Warn("No contact for notification")
		return
	}
	if err := s.notifier.Notify(user.Email, subject, body); err != nil {
		err = apperrors.Wrap(apperrors.CodeDeliveryFailure, err, "notification not delivered")
		s.metrics.Notification(err)
		s.log.WithError(err).WithFields(logrus.Fields{
			"account_id": accountID,
			"subject":    subject,
		}).Error("Failed to notify account owner")
		return
	}
	s.metrics.Notification(nil)
}

// requireCaller rejects requests acting on an account that is not the authenticated one.
func requireCaller(caller, accountID int64) error {
	if caller != accountID {
		return apperrors.Newf(apperrors.CodeIdentityMismatch,
			"account %d does not belong to the authenticated caller", accountID)
	}
	return nil
}

// requirePositive rejects non-positive amounts and amounts finer than a cent, which the
// NUMERIC(18, 2) columns cannot hold.
func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Newf(apperrors.CodeValidation, "amount must be positive, got %s", amount)
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Newf(apperrors.CodeValidation, "amount must have at most 2 decimal places, got %s", amount)
	}
	return nil
}

func requireEnabled(account *models.Account) error {
	if !account.Enabled {
		return apperrors.Newf(apperrors.CodeInvalidState, "account %d is disabled", account.ID)
	}
	return nil
}

// lockAccounts locks every distinct account in ascending id order. Every multi-account unit
// goes through here before ledger.Transfer so row locks are always taken in the same order.
func lockAccounts(ctx context.Context, tx repository.Store, ids ...int64) (map[int64]*models.Account, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	locked := make(map[int64]*models.Account, len(sorted))
	for _, id := range sorted {
		account, err := tx.LockAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	return locked, nil
}

// lockPair locks two accounts in id order and returns them in argument order.
func lockPair(ctx context.Context, tx repository.Store, a, b int64) (*models.Account, *models.Account, error) {
	locked, err := lockAccounts(ctx, tx, a, b)
	if err != nil {
		return nil, nil, err
	}
	return locked[a], locked[b], nil
}

func (s *Service) moved(reason string, amount decimal.Decimal) {
	s.metrics.Moved(reason, amount.InexactFloat64())
}
