package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/ledger"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

const (
	ExpirationSweep = "expirations"
	SettlementSweep = "settlements"
	DonationSweep   = "donations"
)

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Sweep     string
	Scanned   int
	Processed int
	Skipped   int
	Failed    int
}

// errSkipped marks a record that no longer matches the sweep when re-read under lock.
var errSkipped = errors.New("record no longer eligible")

// sweep applies fn to every id in its own transaction. Failures are logged and combined;
// they never stop the remaining records.
func (s *Service) sweep(ctx context.Context, name string, ids []int64, fn func(ctx context.Context, id int64) error) (SweepResult, error) {
	result := SweepResult{Sweep: name, Scanned: len(ids)}
	var errs error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		err := fn(ctx, id)
		switch {
		case err == nil:
			result.Processed++
			s.metrics.SweepRecord(name, "processed")
		case errors.Is(err, errSkipped):
			result.Skipped++
			s.metrics.SweepRecord(name, "skipped")
		default:
			result.Failed++
			s.metrics.SweepRecord(name, "failed")
			s.log.WithError(err).WithFields(logrus.Fields{"sweep": name, "id": id}).Error("Sweep record failed")
			errs = multierr.Append(errs, fmt.Errorf("%s sweep, record %d: %w", name, id, err))
		}
	}
	s.log.WithFields(logrus.Fields{
		"sweep":     name,
		"scanned":   result.Scanned,
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Sweep finished")
	return result, errs
}

// SweepExpirations closes microcredits whose expiration date has passed: COMPLETED when
// nothing was contributed, EXPIRED otherwise.
func (s *Service) SweepExpirations(ctx context.Context) (SweepResult, error) {
	today := s.today()
	due, err := s.store.FindMicrocreditsExpiredBefore(ctx, today)
	if err != nil {
		return SweepResult{Sweep: ExpirationSweep}, fmt.Errorf("failed to list expired microcredits: %w", err)
	}
	return s.sweep(ctx, ExpirationSweep, microcreditIDs(due), func(ctx context.Context, id int64) error {
		return s.expireMicrocredit(ctx, id, today)
	})
}

func (s *Service) expireMicrocredit(ctx context.Context, id int64, today time.Time) error {
	var mc *models.Microcredit
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		mc, err = tx.LockMicrocredit(ctx, id)
		if err != nil {
			return err
		}
		if mc.Status.IsTerminal() || !mc.ExpirationDate.Before(today) {
			return errSkipped
		}
		contributions, err := tx.ListContributions(ctx, id)
		if err != nil {
			return err
		}
		mc.Status = models.MicrocreditExpired
		if len(contributions) == 0 {
			mc.Status = models.MicrocreditCompleted
		}
		return tx.UpdateMicrocredit(ctx, mc)
	})
	if err != nil {
		return err
	}
	s.metrics.Transition("microcredit", string(mc.Status))
	s.log.WithFields(logrus.Fields{"microcredit_id": id, "status": mc.Status}).Info("Microcredit closed by expiration")
	return nil
}

// SweepSettlements repays the lenders of every PENDING or ACCEPTED microcredit expiring
// today. A borrower who cannot cover every contribution gets no partial settlement.
func (s *Service) SweepSettlements(ctx context.Context) (SweepResult, error) {
	today := s.today()
	due, err := s.store.FindMicrocreditsDueOn(ctx, today)
	if err != nil {
		return SweepResult{Sweep: SettlementSweep}, fmt.Errorf("failed to list due microcredits: %w", err)
	}
	return s.sweep(ctx, SettlementSweep, microcreditIDs(due), func(ctx context.Context, id int64) error {
		return s.settleMicrocredit(ctx, id, today)
	})
}

func (s *Service) settleMicrocredit(ctx context.Context, id int64, today time.Time) error {
	var (
		mc    *models.Microcredit
		total decimal.Decimal
		paid  []models.Contribution
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		mc, err = tx.LockMicrocredit(ctx, id)
		if err != nil {
			return err
		}
		if mc.Status != models.MicrocreditPending && mc.Status != models.MicrocreditAccepted {
			return errSkipped
		}
		if !mc.ExpirationDate.Equal(today) {
			return errSkipped
		}

		contributions, err := tx.ListContributions(ctx, id)
		if err != nil {
			return err
		}
		total = decimal.Zero
		ids := []int64{mc.BorrowerAccount}
		for _, c := range contributions {
			if c.Status == models.ContributionAccepted {
				total = total.Add(c.Amount)
				ids = append(ids, c.LenderAccount)
			}
		}
		locked, err := lockAccounts(ctx, tx, ids...)
		if err != nil {
			return err
		}
		borrower := locked[mc.BorrowerAccount]
		if !ledger.HasSufficientFunds(borrower, total) {
			return apperrors.Newf(apperrors.CodeInsufficientFunds,
				"borrower account %d cannot repay %s for microcredit %d", borrower.ID, total, id)
		}

		paid = paid[:0]
		for _, c := range contributions {
			if c.Status != models.ContributionAccepted {
				continue
			}
			description := fmt.Sprintf("repayment of microcredit %d", id)
			if err := ledger.Transfer(ctx, tx, mc.BorrowerAccount, c.LenderAccount, c.Amount, description); err != nil {
				return err
			}
			c.Status = models.ContributionCompleted
			if err := tx.UpdateContribution(ctx, &c); err != nil {
				return fmt.Errorf("failed to complete contribution %d: %w", c.ID, err)
			}
			mc.PendingAmount = mc.PendingAmount.Sub(c.Amount)
			paid = append(paid, c)
		}
		mc.Status = models.MicrocreditCompleted
		return tx.UpdateMicrocredit(ctx, mc)
	})
	if apperrors.Is(err, apperrors.CodeInsufficientFunds) {
		s.notify(ctx, mc.BorrowerAccount, "Microcredit settlement failed",
			fmt.Sprintf("Your account could not cover the repayment of %s for microcredit #%d. The microcredit will expire.",
				total.StringFixed(2), id))
		return err
	}
	if err != nil {
		return err
	}

	s.metrics.Transition("microcredit", string(mc.Status))
	s.moved("settlement", total)
	s.log.WithFields(logrus.Fields{
		"microcredit_id": id,
		"contributions":  len(paid),
		"total":          total,
	}).Info("Microcredit settled")

	for _, c := range paid {
		s.metrics.Transition("contribution", string(c.Status))
		s.notify(ctx, c.LenderAccount, "Your contribution was repaid",
			fmt.Sprintf("Microcredit #%d repaid your contribution of %s.", id, c.Amount.StringFixed(2)))
	}
	if len(paid) > 0 {
		s.notify(ctx, mc.BorrowerAccount, "Microcredit repaid",
			fmt.Sprintf("%s was debited from your account to repay %d contribution(s) of microcredit #%d.",
				total.StringFixed(2), len(paid), id))
	}
	return nil
}

// SweepDonationTimeouts denies PENDING donations older than the configured timeout and
// returns the reserved amount to the donor.
func (s *Service) SweepDonationTimeouts(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.config.DonationTimeout)
	stale, err := s.store.FindPendingDonationsBefore(ctx, cutoff)
	if err != nil {
		return SweepResult{Sweep: DonationSweep}, fmt.Errorf("failed to list stale donations: %w", err)
	}
	ids := make([]int64, 0, len(stale))
	for _, d := range stale {
		ids = append(ids, d.ID)
	}
	return s.sweep(ctx, DonationSweep, ids, func(ctx context.Context, id int64) error {
		return s.timeoutDonation(ctx, id, cutoff)
	})
}

func (s *Service) timeoutDonation(ctx context.Context, id int64, cutoff time.Time) error {
	var donation *models.Donation
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		donation, err = tx.LockDonation(ctx, id)
		if err != nil {
			return err
		}
		if donation.Status != models.DonationPending || !donation.CreatedAt.Before(cutoff) {
			return errSkipped
		}
		donor, err := tx.LockAccount(ctx, donation.DonorAccount)
		if err != nil {
			return err
		}
		if err := ledger.Release(ctx, tx, donor, donation.Amount); err != nil {
			return err
		}
		donation.Status = models.DonationDenied
		return tx.UpdateDonation(ctx, donation)
	})
	if err != nil {
		return err
	}

	s.metrics.Transition("donation", string(donation.Status))
	s.log.WithFields(logrus.Fields{"donation_id": id, "amount": donation.Amount}).Info("Donation timed out")
	s.notify(ctx, donation.DonorAccount, "Donation returned",
		fmt.Sprintf("Your donation #%d of %s was not accepted in time and the funds were released.",
			id, donation.Amount.StringFixed(2)))
	return nil
}

func microcreditIDs(list []models.Microcredit) []int64 {
	ids := make([]int64, 0, len(list))
	for _, mc := range list {
		ids = append(ids, mc.ID)
	}
	return ids
}
