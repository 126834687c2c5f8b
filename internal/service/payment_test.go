package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
)

func TestCreatePayment_IssuesCodeWithoutMovingFunds(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "50")
	receiver := env.account(t, "0")

	payment, err := env.svc.CreatePayment(env.ctx, sender, PaymentRequest{
		SenderAccount:   sender,
		ReceiverAccount: receiver,
		Amount:          dec("80"),
		Description:     "coffee beans",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	require.NotNil(t, payment.Code)

	stored, err := env.store.FindPaymentByCode(env.ctx, *payment.Code)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, stored.ID)

	requireAmount(t, "50", env.balance(t, sender))
	requireAmount(t, "0", env.balance(t, receiver))
}

func TestCreatePayment_Rejections(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "50")
	receiver := env.account(t, "0")

	tests := []struct {
		name   string
		caller int64
		req    PaymentRequest
		code   apperrors.Code
	}{
		{"caller is not sender", receiver, PaymentRequest{SenderAccount: sender, ReceiverAccount: receiver, Amount: dec("1")}, apperrors.CodeIdentityMismatch},
		{"zero amount", sender, PaymentRequest{SenderAccount: sender, ReceiverAccount: receiver, Amount: dec("0")}, apperrors.CodeValidation},
		{"sub-cent amount", sender, PaymentRequest{SenderAccount: sender, ReceiverAccount: receiver, Amount: dec("0.004")}, apperrors.CodeValidation},
		{"half-cent amount", sender, PaymentRequest{SenderAccount: sender, ReceiverAccount: receiver, Amount: dec("10.005")}, apperrors.CodeValidation},
		{"self payment", sender, PaymentRequest{SenderAccount: sender, ReceiverAccount: sender, Amount: dec("1")}, apperrors.CodeValidation},
		{"unknown receiver", sender, PaymentRequest{SenderAccount: sender, ReceiverAccount: 9999, Amount: dec("1")}, apperrors.CodeNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreatePayment(env.ctx, tc.caller, tc.req)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
		})
	}
}

func TestCreatePayment_GenerationFailureKeepsPayment(t *testing.T) {
	env := newTestEnv(t, func(p *Params) {
		p.Codes = fakeCodes{generate: func(int64) (string, error) { return "", errors.New("qr backend down") }}
	})
	sender := env.account(t, "50")
	receiver := env.account(t, "0")

	payment, err := env.svc.CreatePayment(env.ctx, sender, PaymentRequest{
		SenderAccount: sender, ReceiverAccount: receiver, Amount: dec("5"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeGenerationFailure))
	require.NotNil(t, payment)
	assert.Nil(t, payment.Code)

	stored, err := env.store.FindPaymentByID(env.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Nil(t, stored.Code)

	// The payment stays processable without a code.
	processed, err := env.svc.ProcessPayment(env.ctx, receiver, payment.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentAccepted, processed.Status)
}

func TestCreatePayment_CodeStoreFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "50")
	receiver := env.account(t, "0")

	boom := errors.New("connection reset")
	env.store.FailOn("UpdatePayment", 0, boom)

	payment, err := env.svc.CreatePayment(env.ctx, sender, PaymentRequest{
		SenderAccount: sender, ReceiverAccount: receiver, Amount: dec("5"),
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, apperrors.CodeInternal, apperrors.CodeOf(err))
	require.NotNil(t, payment)
	assert.Nil(t, payment.Code)

	stored, err := env.store.FindPaymentByID(env.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Nil(t, stored.Code)
}

func TestCreatePayment_TrailingZerosAreWholeCents(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "50")
	receiver := env.account(t, "0")

	payment := newPayment(t, env, sender, receiver, "12.500")
	requireAmount(t, "12.5", payment.Amount)
}

func newPayment(t *testing.T, env *testEnv, sender, receiver int64, amount string) *models.Payment {
	t.Helper()
	payment, err := env.svc.CreatePayment(env.ctx, sender, PaymentRequest{
		SenderAccount: sender, ReceiverAccount: receiver, Amount: dec(amount),
	})
	require.NoError(t, err)
	return payment
}

func TestProcessPayment_Outcomes(t *testing.T) {
	tests := []struct {
		name           string
		senderBalance  string
		senderReserved string
		accept         bool
		wantStatus     models.PaymentStatus
		wantSender     string
		wantReceiver   string
	}{
		{"accepted", "100", "0", true, models.PaymentAccepted, "60", "40"},
		{"denied", "100", "0", false, models.PaymentDenied, "100", "0"},
		{"insufficient funds fails", "30", "0", true, models.PaymentFailed, "30", "0"},
		{"reserved funds are not spendable", "100", "70", true, models.PaymentFailed, "100", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			sender := env.account(t, tc.senderBalance)
			receiver := env.account(t, "0")
			if reserved := dec(tc.senderReserved); reserved.IsPositive() {
				other := env.account(t, "0")
				_, err := env.svc.CreateDonation(env.ctx, sender, DonationRequest{
					DonorAccount: sender, BeneficiaryAccount: other, Amount: reserved,
				})
				require.NoError(t, err)
			}
			payment := newPayment(t, env, sender, receiver, "40")

			processed, err := env.svc.ProcessPayment(env.ctx, receiver, payment.ID, tc.accept)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, processed.Status)

			stored, err := env.store.FindPaymentByID(env.ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, stored.Status)
			requireAmount(t, tc.wantSender, env.balance(t, sender))
			requireAmount(t, tc.wantReceiver, env.balance(t, receiver))
		})
	}
}

func TestProcessPayment_TerminalIsFinal(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "100")
	receiver := env.account(t, "0")
	payment := newPayment(t, env, sender, receiver, "40")

	_, err := env.svc.ProcessPayment(env.ctx, receiver, payment.ID, true)
	require.NoError(t, err)

	for _, accept := range []bool{true, false} {
		_, err = env.svc.ProcessPayment(env.ctx, receiver, payment.ID, accept)
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	}
	requireAmount(t, "60", env.balance(t, sender))
	requireAmount(t, "40", env.balance(t, receiver))

	stored, err := env.store.FindPaymentByID(env.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentAccepted, stored.Status)
}

func TestProcessPayment_OnlyReceiverDecides(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "100")
	receiver := env.account(t, "0")
	payment := newPayment(t, env, sender, receiver, "40")

	_, err := env.svc.ProcessPayment(env.ctx, sender, payment.ID, true)
	assert.True(t, apperrors.Is(err, apperrors.CodeIdentityMismatch))

	_, err = env.svc.ProcessPayment(env.ctx, receiver, 424242, true)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	requireAmount(t, "100", env.balance(t, sender))
}

func TestProcessPayment_TransferFailureRollsBackStatus(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "100")
	receiver := env.account(t, "0")
	payment := newPayment(t, env, sender, receiver, "40")

	boom := errors.New("disk full")
	env.store.FailOn("CreateTransaction", 1, boom)

	_, err := env.svc.ProcessPayment(env.ctx, receiver, payment.ID, true)
	require.ErrorIs(t, err, boom)

	stored, err := env.store.FindPaymentByID(env.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
	requireAmount(t, "100", env.balance(t, sender))
	requireAmount(t, "0", env.balance(t, receiver))
}

func TestResolvePaymentByCode(t *testing.T) {
	env := newTestEnv(t)
	sender := env.account(t, "100")
	receiver := env.account(t, "0")
	payment := newPayment(t, env, sender, receiver, "40")

	resolved, err := env.svc.ResolvePaymentByCode(env.ctx, receiver, *payment.Code)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, resolved.ID)

	_, err = env.svc.ResolvePaymentByCode(env.ctx, sender, *payment.Code)
	assert.True(t, apperrors.Is(err, apperrors.CodeIdentityMismatch))

	_, err = env.svc.ResolvePaymentByCode(env.ctx, receiver, "MFP-1-forged")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	visible, err := env.svc.GetPayment(env.ctx, sender, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, visible.ID)

	stranger := env.account(t, "0")
	_, err = env.svc.GetPayment(env.ctx, stranger, payment.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeIdentityMismatch))
}
