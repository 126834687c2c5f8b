package service

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
)

func newMicrocredit(t *testing.T, env *testEnv, borrower int64, amount string, expires *time.Time) *models.Microcredit {
	t.Helper()
	mc, err := env.svc.CreateMicrocredit(env.ctx, borrower, MicrocreditRequest{
		BorrowerAccount: borrower,
		Amount:          dec(amount),
		ExpirationDate:  expires,
		Description:     "sewing machine",
	})
	require.NoError(t, err)
	return mc
}

func contribute(env *testEnv, lender, microcreditID int64, amount string) (*models.Contribution, error) {
	return env.svc.CreateContribution(env.ctx, lender, ContributionRequest{
		LenderAccount: lender,
		MicrocreditID: microcreditID,
		Amount:        dec(amount),
	})
}

func TestCreateMicrocredit_Defaults(t *testing.T) {
	env := newTestEnv(t, func(p *Params) { p.Rates = fakeRates{rate: 21.5} })
	borrower := env.account(t, "0")

	mc := newMicrocredit(t, env, borrower, "5000", nil)
	assert.Equal(t, models.MicrocreditPending, mc.Status)
	requireAmount(t, "5000", mc.RemainingAmount)
	assert.True(t, mc.PendingAmount.IsZero())
	assert.Equal(t, 1, mc.Installments)
	assert.Equal(t, 21.5, mc.InterestRate)
	assert.Equal(t, time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC), mc.ExpirationDate)
}

func TestCreateMicrocredit_RateFallback(t *testing.T) {
	env := newTestEnv(t, func(p *Params) { p.Rates = fakeRates{err: errors.New("cbr timeout")} })
	borrower := env.account(t, "0")

	mc := newMicrocredit(t, env, borrower, "100", date(time.Date(2026, 10, 25, 15, 30, 0, 0, time.UTC)))
	assert.Equal(t, 21.0, mc.InterestRate)
	assert.Equal(t, time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC), mc.ExpirationDate)
}

func TestCreateMicrocredit_Rejections(t *testing.T) {
	env := newTestEnv(t)
	borrower := env.account(t, "0")
	other := env.account(t, "0")

	tests := []struct {
		name   string
		caller int64
		req    MicrocreditRequest
		code   apperrors.Code
	}{
		{"caller is not borrower", other, MicrocreditRequest{BorrowerAccount: borrower, Amount: dec("1")}, apperrors.CodeIdentityMismatch},
		{"zero amount", borrower, MicrocreditRequest{BorrowerAccount: borrower, Amount: dec("0")}, apperrors.CodeValidation},
		{"sub-cent amount", borrower, MicrocreditRequest{BorrowerAccount: borrower, Amount: dec("100.001")}, apperrors.CodeValidation},
		{"past expiration", borrower, MicrocreditRequest{BorrowerAccount: borrower, Amount: dec("1"),
			ExpirationDate: date(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))}, apperrors.CodeValidation},
		{"negative installments", borrower, MicrocreditRequest{BorrowerAccount: borrower, Amount: dec("1"), Installments: -2}, apperrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateMicrocredit(env.ctx, tc.caller, tc.req)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
		})
	}
}

func TestCreateContribution_MovesFundsImmediately(t *testing.T) {
	env := newTestEnv(t)
	borrower := env.account(t, "0")
	lender := env.account(t, "100000.00")
	mc := newMicrocredit(t, env, borrower, "5000.00", nil)

	contribution, err := contribute(env, lender, mc.ID, "1000.00")
	require.NoError(t, err)
	assert.Equal(t, models.ContributionAccepted, contribution.Status)

	got := env.microcredit(t, mc.ID)
	requireAmount(t, "4000.00", got.RemainingAmount)
	requireAmount(t, "1000.00", got.PendingAmount)
	assert.Equal(t, models.MicrocreditPending, got.Status)
	requireAmount(t, "99000.00", env.balance(t, lender))
	requireAmount(t, "1000.00", env.balance(t, borrower))

	sent := env.notifier.to(env.emailOf(t, borrower))
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].body, "1000.00")
}

func TestCreateContribution_FullFundingTransition(t *testing.T) {
	env := newTestEnv(t)
	borrower := env.account(t, "0")
	lenders := []int64{env.account(t, "1000"), env.account(t, "1000"), env.account(t, "1000")}
	mc := newMicrocredit(t, env, borrower, "1500", nil)

	steps := []struct {
		lender     int64
		amount     string
		wantStatus models.MicrocreditStatus
	}{
		{lenders[0], "700", models.MicrocreditPending},
		{lenders[1], "799.99", models.MicrocreditPending},
		{lenders[2], "0.01", models.MicrocreditAccepted},
	}
	for _, step := range steps {
		_, err := contribute(env, step.lender, mc.ID, step.amount)
		require.NoError(t, err)
		assert.Equal(t, step.wantStatus, env.microcredit(t, mc.ID).Status, "after contributing %s", step.amount)
	}

	got := env.microcredit(t, mc.ID)
	assert.True(t, got.RemainingAmount.IsZero())
	requireAmount(t, "1500", got.PendingAmount)

	contributions, err := env.svc.ListContributions(env.ctx, mc.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 3)

	_, err = contribute(env, lenders[0], mc.ID, "1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	assert.Contains(t, err.Error(), "fully funded")

	open, err := env.svc.ListOpenMicrocredits(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCreateContribution_Gates(t *testing.T) {
	env := newTestEnv(t)
	borrower := env.account(t, "0")
	lender := env.account(t, "100")
	poor := env.account(t, "10")
	mc := newMicrocredit(t, env, borrower, "50", nil)

	// reserve 95 of the lender's 100 through a pending donation
	reservedLender := env.account(t, "100")
	_, err := env.svc.CreateDonation(env.ctx, reservedLender, DonationRequest{
		DonorAccount: reservedLender, BeneficiaryAccount: borrower, Amount: dec("95"),
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  int64
		lender  int64
		mcID    int64
		amount  string
		code    apperrors.Code
		message string
	}{
		{"caller is not lender", borrower, lender, mc.ID, "5", apperrors.CodeIdentityMismatch, ""},
		{"own microcredit", borrower, borrower, mc.ID, "5", apperrors.CodeValidation, "own microcredit"},
		{"unknown microcredit", lender, lender, 4242, "5", apperrors.CodeNotFound, ""},
		{"exceeds remaining", lender, lender, mc.ID, "50.01", apperrors.CodeValidation, "exceeds remaining"},
		{"insufficient funds", poor, poor, mc.ID, "10.01", apperrors.CodeInsufficientFunds, ""},
		{"reservation counts against funds", reservedLender, reservedLender, mc.ID, "6", apperrors.CodeInsufficientFunds, ""},
		{"non-positive amount", lender, lender, mc.ID, "0", apperrors.CodeValidation, ""},
		{"sub-cent amount", lender, lender, mc.ID, "0.004", apperrors.CodeValidation, "2 decimal places"},
		{"fractional cent", lender, lender, mc.ID, "5.125", apperrors.CodeValidation, "2 decimal places"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateContribution(env.ctx, tc.caller, ContributionRequest{
				LenderAccount: tc.lender, MicrocreditID: tc.mcID, Amount: dec(tc.amount),
			})
			require.Error(t, err)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
			if tc.message != "" {
				assert.Contains(t, err.Error(), tc.message)
			}
		})
	}

	// exactly at the solvency boundary is allowed
	_, err = contribute(env, poor, mc.ID, "10")
	require.NoError(t, err)
	_, err = contribute(env, reservedLender, mc.ID, "5")
	require.NoError(t, err)

	requireAmount(t, "100", env.balance(t, lender))
	requireAmount(t, "35", env.microcredit(t, mc.ID).RemainingAmount)
}

func TestCreateContribution_ClosedMicrocredits(t *testing.T) {
	env := newTestEnv(t)
	borrower := env.account(t, "0")
	lender := env.account(t, "100")
	expires := date(env.clock.Now())

	funded := newMicrocredit(t, env, borrower, "10", expires)
	_, err := contribute(env, lender, funded.ID, "5")
	require.NoError(t, err)
	empty := newMicrocredit(t, env, borrower, "10", expires)

	env.clock.Advance(24 * time.Hour)
	_, err = env.svc.SweepExpirations(env.ctx)
	require.NoError(t, err)

	_, err = contribute(env, lender, funded.ID, "1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	assert.Contains(t, err.Error(), "expired")

	_, err = contribute(env, lender, empty.ID, "1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	assert.Contains(t, err.Error(), "completed")
}

func TestCreateContribution_ExpiredBorrowerCannotLend(t *testing.T) {
	env := newTestEnv(t)
	defaulter := env.account(t, "0")
	lender := env.account(t, "100")

	mc := newMicrocredit(t, env, defaulter, "10", date(env.clock.Now()))
	_, err := contribute(env, lender, mc.ID, "10")
	require.NoError(t, err)
	env.clock.Advance(24 * time.Hour)
	_, err = env.svc.SweepExpirations(env.ctx)
	require.NoError(t, err)
	require.Equal(t, models.MicrocreditExpired, env.microcredit(t, mc.ID).Status)

	other := env.account(t, "0")
	target := newMicrocredit(t, env, other, "50", nil)
	_, err = contribute(env, defaulter, target.ID, "5")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
	assert.Contains(t, err.Error(), "expired microcredit")
	requireAmount(t, "10", env.balance(t, defaulter))
}

func TestCreateContribution_NotificationFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("smtp unreachable")
	borrower := env.account(t, "0")
	lender := env.account(t, "100")
	mc := newMicrocredit(t, env, borrower, "50", nil)

	contribution, err := contribute(env, lender, mc.ID, "20")
	require.NoError(t, err)
	assert.Equal(t, models.ContributionAccepted, contribution.Status)
	requireAmount(t, "20", env.balance(t, borrower))

	failed, err := testutil.GatherAndCount(env.registry, "microfin_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}

func TestCreateContribution_StoreFailureLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	borrower := env.account(t, "0")
	lender := env.account(t, "100")
	mc := newMicrocredit(t, env, borrower, "50", nil)

	boom := errors.New("insert failed")
	env.store.FailOn("CreateContribution", 0, boom)

	_, err := contribute(env, lender, mc.ID, "20")
	require.ErrorIs(t, err, boom)
	requireAmount(t, "100", env.balance(t, lender))
	requireAmount(t, "0", env.balance(t, borrower))
	requireAmount(t, "50", env.microcredit(t, mc.ID).RemainingAmount)
	assert.Empty(t, env.notifier.to(env.emailOf(t, borrower)))
}
