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

// PaymentRequest describes a payment the sender asks the receiver to collect.
type PaymentRequest struct {
	SenderAccount   int64
	ReceiverAccount int64
	Amount          decimal.Decimal
	Description     string
}

// CreatePayment persists a PENDING payment and binds a code to it. Funds are not checked
// until the payee processes the payment. When the code cannot be generated the payment is
// returned without a code together with a GenerationFailure error; when the code cannot be
// stored it is returned without a code together with an Internal error.
func (s *Service) CreatePayment(ctx context.Context, caller int64, req PaymentRequest) (*models.Payment, error) {
	if err := requireCaller(caller, req.SenderAccount); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount); err != nil {
		return nil, err
	}
	if req.SenderAccount == req.ReceiverAccount {
		return nil, apperrors.New(apperrors.CodeValidation, "sender and receiver must differ")
	}

	payment := &models.Payment{
		SenderAccountID:   req.SenderAccount,
		ReceiverAccountID: req.ReceiverAccount,
		Amount:            req.Amount,
		Description:       strings.TrimSpace(req.Description),
		Status:            models.PaymentPending,
	}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		sender, receiver, err := lockPair(ctx, tx, req.SenderAccount, req.ReceiverAccount)
		if err != nil {
			return err
		}
		if err := requireEnabled(sender); err != nil {
			return err
		}
		if err := requireEnabled(receiver); err != nil {
			return err
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition("payment", string(payment.Status))

	code, err := s.codes.Generate(payment.ID)
	if err != nil {
		s.log.WithError(err).WithField("payment_id", payment.ID).Error("Failed to generate payment code")
		return payment, apperrors.Wrap(apperrors.CodeGenerationFailure, err,
			fmt.Sprintf("payment %d stored without code", payment.ID))
	}
	payment.Code = &code
	if err := s.store.UpdatePayment(ctx, payment); err != nil {
		payment.Code = nil
		s.log.WithError(err).WithField("payment_id", payment.ID).Error("Failed to store payment code")
		return payment, apperrors.Wrap(apperrors.CodeInternal, err,
			fmt.Sprintf("failed to store code for payment %d", payment.ID))
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"sender":     payment.SenderAccountID,
		"receiver":   payment.ReceiverAccountID,
		"amount":     payment.Amount,
	}).Info("Payment created")
	return payment, nil
}

// ProcessPayment is the payee's decision on a PENDING payment. A denial sets DENIED; an
// acceptance moves the funds and sets ACCEPTED, or sets FAILED when the sender cannot cover
// the amount. Terminal payments are rejected with InvalidState.
func (s *Service) ProcessPayment(ctx context.Context, caller, paymentID int64, accept bool) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		payment, err = tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := requireCaller(caller, payment.ReceiverAccountID); err != nil {
			return err
		}
		if payment.Status.IsTerminal() {
			return apperrors.Newf(apperrors.CodeInvalidState,
				"payment %d is already %s", payment.ID, payment.Status)
		}

		switch {
		case !accept:
			payment.Status = models.PaymentDenied
		default:
			sender, _, err := lockPair(ctx, tx, payment.SenderAccountID, payment.ReceiverAccountID)
			if err != nil {
				return err
			}
			if !ledger.HasSufficientFunds(sender, payment.Amount) {
				payment.Status = models.PaymentFailed
				break
			}
			description := fmt.Sprintf("payment %d", payment.ID)
			if err := ledger.Transfer(ctx, tx, payment.SenderAccountID, payment.ReceiverAccountID, payment.Amount, description); err != nil {
				return err
			}
			payment.Status = models.PaymentAccepted
		}
		return tx.UpdatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition("payment", string(payment.Status))
	if payment.Status == models.PaymentAccepted {
		s.moved("payment", payment.Amount)
	}
	s.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"status":     payment.Status,
		"amount":     payment.Amount,
	}).Info("Payment processed")
	return payment, nil
}

// GetPayment returns a payment visible to its sender or receiver.
func (s *Service) GetPayment(ctx context.Context, caller, paymentID int64) (*models.Payment, error) {
	payment, err := s.store.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if caller != payment.SenderAccountID && caller != payment.ReceiverAccountID {
		return nil, apperrors.Newf(apperrors.CodeIdentityMismatch, "payment %d is not visible to the caller", paymentID)
	}
	return payment, nil
}

// ResolvePaymentByCode returns the payment a scanned code refers to. Only the payee may resolve it.
func (s *Service) ResolvePaymentByCode(ctx context.Context, caller int64, code string) (*models.Payment, error) {
	paymentID, err := s.codes.Parse(code)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "malformed payment code")
	}
	payment, err := s.store.FindPaymentByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if payment.ID != paymentID {
		return nil, apperrors.New(apperrors.CodeValidation, "payment code does not match its payment")
	}
	if err := requireCaller(caller, payment.ReceiverAccountID); err != nil {
		return nil, err
	}
	return payment, nil
}
