package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/ledger"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

// MicrocreditRequest describes a borrower's funding request. A nil ExpirationDate and a
// zero Installments take the configured defaults.
type MicrocreditRequest struct {
	BorrowerAccount int64
	Amount          decimal.Decimal
	ExpirationDate  *time.Time
	Installments    int
	Description     string
}

// ContributionRequest describes a lender's pledge toward a microcredit.
type ContributionRequest struct {
	LenderAccount int64
	MicrocreditID int64
	Amount        decimal.Decimal
}

// CreateMicrocredit opens a PENDING microcredit for the caller. The borrower is not
// fund-checked since it only receives money at this point.
func (s *Service) CreateMicrocredit(ctx context.Context, caller int64, req MicrocreditRequest) (*models.Microcredit, error) {
	if err := requireCaller(caller, req.BorrowerAccount); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	if req.Installments < 0 {
		return nil, apperrors.Newf(apperrors.CodeValidation, "installments must not be negative, got %d", req.Installments)
	}

	today := s.today()
	expiration := today.Add(s.config.DefaultMicrocreditDur)
	if req.ExpirationDate != nil {
		expiration = dateOf(*req.ExpirationDate, time.UTC)
		if expiration.Before(today) {
			return nil, apperrors.Newf(apperrors.CodeValidation,
				"expiration date %s is in the past", expiration.Format(time.DateOnly))
		}
	}
	installments := req.Installments
	if installments == 0 {
		installments = 1
	}

	borrower, err := s.store.FindAccountByID(ctx, req.BorrowerAccount)
	if err != nil {
		return nil, err
	}
	if err := requireEnabled(borrower); err != nil {
		return nil, err
	}

	mc := &models.Microcredit{
		BorrowerAccount: req.BorrowerAccount,
		Amount:          req.Amount,
		RemainingAmount: req.Amount,
		PendingAmount:   decimal.Zero,
		InterestRate:    s.interestRate(ctx),
		Installments:    installments,
		Description:     strings.TrimSpace(req.Description),
		ExpirationDate:  expiration,
		Status:          models.MicrocreditPending,
	}
	if err := s.store.CreateMicrocredit(ctx, mc); err != nil {
		return nil, err
	}

	s.metrics.Transition("microcredit", string(mc.Status))
	s.log.WithFields(logrus.Fields{
		"microcredit_id": mc.ID,
		"borrower":       mc.BorrowerAccount,
		"amount":         mc.Amount,
		"expires":        mc.ExpirationDate.Format(time.DateOnly),
		"interest_rate":  mc.InterestRate,
	}).Info("Microcredit created")
	return mc, nil
}

func (s *Service) interestRate(ctx context.Context) float64 {
	if s.rates == nil {
		return s.config.DefaultInterestRate
	}
	rate, err := s.rates.GetKeyRate(ctx)
	if err != nil {
		s.log.WithError(err).Warnf("Key rate unavailable, using default interest rate %.2f", s.config.DefaultInterestRate)
		return s.config.DefaultInterestRate
	}
	return rate
}

// CreateContribution moves amount from the lender to the borrower and records the pledge.
// The microcredit becomes ACCEPTED once its remaining amount reaches zero.
func (s *Service) CreateContribution(ctx context.Context, caller int64, req ContributionRequest) (*models.Contribution, error) {
	if err := requireCaller(caller, req.LenderAccount); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}

	var (
		mc           *models.Microcredit
		contribution *models.Contribution
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		mc, err = tx.LockMicrocredit(ctx, req.MicrocreditID)
		if err != nil {
			return err
		}
		switch mc.Status {
		case models.MicrocreditCompleted:
			return apperrors.Newf(apperrors.CodeInvalidState, "microcredit %d is already completed", mc.ID)
		case models.MicrocreditExpired:
			return apperrors.Newf(apperrors.CodeInvalidState, "microcredit %d has expired", mc.ID)
		case models.MicrocreditAccepted:
			return apperrors.Newf(apperrors.CodeInvalidState, "microcredit %d is already fully funded", mc.ID)
		}
		if mc.BorrowerAccount == req.LenderAccount {
			return apperrors.New(apperrors.CodeValidation, "borrower cannot contribute to their own microcredit")
		}
		expired, err := tx.CountMicrocreditsByBorrower(ctx, req.LenderAccount, models.MicrocreditExpired)
		if err != nil {
			return err
		}
		if expired > 0 {
			return apperrors.Newf(apperrors.CodeInvalidState,
				"account %d has %d expired microcredit(s) outstanding", req.LenderAccount, expired)
		}
		if req.Amount.GreaterThan(mc.RemainingAmount) {
			return apperrors.Newf(apperrors.CodeValidation,
				"contribution %s exceeds remaining amount %s", req.Amount, mc.RemainingAmount)
		}

		lender, borrower, err := lockPair(ctx, tx, req.LenderAccount, mc.BorrowerAccount)
		if err != nil {
			return err
		}
		if err := requireEnabled(lender); err != nil {
			return err
		}
		if err := requireEnabled(borrower); err != nil {
			return err
		}
		if !ledger.HasSufficientFunds(lender, req.Amount) {
			return apperrors.Newf(apperrors.CodeInsufficientFunds,
				"account %d cannot cover contribution of %s", lender.ID, req.Amount)
		}

		description := fmt.Sprintf("contribution to microcredit %d", mc.ID)
		if err := ledger.Transfer(ctx, tx, lender.ID, borrower.ID, req.Amount, description); err != nil {
			return err
		}

		mc.RemainingAmount = mc.RemainingAmount.Sub(req.Amount)
		mc.PendingAmount = mc.PendingAmount.Add(req.Amount)
		if mc.RemainingAmount.IsZero() {
			mc.Status = models.MicrocreditAccepted
		}
		if err := tx.UpdateMicrocredit(ctx, mc); err != nil {
			return fmt.Errorf("failed to update microcredit %d: %w", mc.ID, err)
		}

		contribution = &models.Contribution{
			MicrocreditID: mc.ID,
			LenderAccount: req.LenderAccount,
			Amount:        req.Amount,
			Status:        models.ContributionAccepted,
		}
		return tx.CreateContribution(ctx, contribution)
	})
	if err != nil {
		return nil, err
	}

	s.moved("contribution", req.Amount)
	s.metrics.Transition("contribution", string(contribution.Status))
	if mc.Status == models.MicrocreditAccepted {
		s.metrics.Transition("microcredit", string(mc.Status))
	}
	s.log.WithFields(logrus.Fields{
		"microcredit_id":  mc.ID,
		"contribution_id": contribution.ID,
		"lender":          contribution.LenderAccount,
		"amount":          contribution.Amount,
		"remaining":       mc.RemainingAmount,
		"status":          mc.Status,
	}).Info("Contribution accepted")

	s.notify(ctx, mc.BorrowerAccount, "New contribution to your microcredit",
		fmt.Sprintf("Your microcredit #%d received a contribution of %s. Remaining amount: %s.",
			mc.ID, contribution.Amount.StringFixed(2), mc.RemainingAmount.StringFixed(2)))
	return contribution, nil
}

// GetMicrocredit returns a microcredit by id.
func (s *Service) GetMicrocredit(ctx context.Context, id int64) (*models.Microcredit, error) {
	return s.store.FindMicrocreditByID(ctx, id)
}

// ListOpenMicrocredits returns the microcredits still accepting contributions.
func (s *Service) ListOpenMicrocredits(ctx context.Context) ([]models.Microcredit, error) {
	return s.store.ListMicrocreditsByStatus(ctx, models.MicrocreditPending)
}

// ListContributions returns the contributions of a microcredit.
func (s *Service) ListContributions(ctx context.Context, microcreditID int64) ([]models.Contribution, error) {
	if _, err := s.store.FindMicrocreditByID(ctx, microcreditID); err != nil {
		return nil, err
	}
	return s.store.ListContributions(ctx, microcreditID)
}
