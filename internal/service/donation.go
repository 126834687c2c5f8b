package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/ledger"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

// DonationRequest describes a gift from the donor to the beneficiary.
type DonationRequest struct {
	DonorAccount       int64
	BeneficiaryAccount int64
	Amount             decimal.Decimal
}

// CreateDonation reserves the amount on the donor's account and records a PENDING donation
// awaiting the beneficiary's decision.
func (s *Service) CreateDonation(ctx context.Context, caller int64, req DonationRequest) (*models.Donation, error) {
	if err := requireCaller(caller, req.DonorAccount); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	if req.DonorAccount == req.BeneficiaryAccount {
		return nil, apperrors.New(apperrors.CodeValidation, "donor and beneficiary must differ")
	}

	donation := &models.Donation{
		DonorAccount:       req.DonorAccount,
		BeneficiaryAccount: req.BeneficiaryAccount,
		Amount:             req.Amount,
		Status:             models.DonationPending,
		CreatedAt:          s.now(),
	}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		donor, beneficiary, err := lockPair(ctx, tx, req.DonorAccount, req.BeneficiaryAccount)
		if err != nil {
			return err
		}
		if err := requireEnabled(donor); err != nil {
			return err
		}
		if err := requireEnabled(beneficiary); err != nil {
			return err
		}
		if err := ledger.Reserve(ctx, tx, donor, req.Amount); err != nil {
			return err
		}
		return tx.CreateDonation(ctx, donation)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition("donation", string(donation.Status))
	s.log.WithFields(logrus.Fields{
		"donation_id": donation.ID,
		"donor":       donation.DonorAccount,
		"beneficiary": donation.BeneficiaryAccount,
		"amount":      donation.Amount,
	}).Info("Donation created")

	s.notify(ctx, donation.BeneficiaryAccount, "You received a donation",
		fmt.Sprintf("Account %d offers you a donation of %s (#%d). Accept or deny it before it times out.",
			donation.DonorAccount, donation.Amount.StringFixed(2), donation.ID))
	return donation, nil
}

// ProcessDonation is the beneficiary's decision. Both outcomes release the donor's
// reservation; acceptance also moves the funds.
func (s *Service) ProcessDonation(ctx context.Context, caller, donationID int64, accept bool) (*models.Donation, error) {
	var donation *models.Donation
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		donation, err = tx.LockDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if err := requireCaller(caller, donation.BeneficiaryAccount); err != nil {
			return err
		}
		if donation.Status.IsTerminal() {
			return apperrors.Newf(apperrors.CodeInvalidState, "donation %d is already %s", donation.ID, donation.Status)
		}

		donor, _, err := lockPair(ctx, tx, donation.DonorAccount, donation.BeneficiaryAccount)
		if err != nil {
			return err
		}
		if err := ledger.Release(ctx, tx, donor, donation.Amount); err != nil {
			return err
		}
		donation.Status = models.DonationDenied
		if accept {
			description := fmt.Sprintf("donation %d", donation.ID)
			if err := ledger.Transfer(ctx, tx, donation.DonorAccount, donation.BeneficiaryAccount, donation.Amount, description); err != nil {
				return err
			}
			donation.Status = models.DonationAccepted
		}
		return tx.UpdateDonation(ctx, donation)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition("donation", string(donation.Status))
	if donation.Status == models.DonationAccepted {
		s.moved("donation", donation.Amount)
	}
	s.log.WithFields(logrus.Fields{
		"donation_id": donation.ID,
		"status":      donation.Status,
	}).Info("Donation processed")
	return donation, nil
}

// GetDonation returns a donation visible to its donor or beneficiary.
func (s *Service) GetDonation(ctx context.Context, caller, donationID int64) (*models.Donation, error) {
	donation, err := s.store.FindDonationByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if caller != donation.DonorAccount && caller != donation.BeneficiaryAccount {
		return nil, apperrors.Newf(apperrors.CodeIdentityMismatch, "donation %d is not visible to the caller", donationID)
	}
	return donation, nil
}
