package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

func newAccount(t *testing.T, s *Store, amount string) *models.Account {
	t.Helper()
	account := &models.Account{Amount: decimal.RequireFromString(amount), Enabled: true}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	account := newAccount(t, s, "100")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.LockAccount(ctx, account.ID)
		require.NoError(t, err)
		locked.Amount = decimal.Zero
		require.NoError(t, tx.UpdateAccount(ctx, locked))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)), "amount = %s, want 100", got.Amount)
}

func TestWithTx_CommitsAndNests(t *testing.T) {
	s := New()
	ctx := context.Background()
	account := newAccount(t, s, "100")

	err := s.WithTx(ctx, func(tx repository.Store) error {
		return tx.WithTx(ctx, func(inner repository.Store) error {
			locked, err := inner.LockAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			locked.ReservedAmount = decimal.NewFromInt(40)
			return inner.UpdateAccount(ctx, locked)
		})
	})
	require.NoError(t, err)

	got, err := s.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.ReservedAmount.Equal(decimal.NewFromInt(40)))
}

func TestAccountLockOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newAccount(t, s, "1")
	b := newAccount(t, s, "1")

	// locks outside a transaction are plain reads
	_, err := s.LockAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, s.AccountLockOrders())

	err = s.WithTx(ctx, func(tx repository.Store) error {
		for _, id := range []int64{b.ID, a.ID, b.ID} {
			if _, err := tx.LockAccount(ctx, id); err != nil {
				return err
			}
		}
		return tx.WithTx(ctx, func(inner repository.Store) error {
			_, err := inner.LockAccount(ctx, a.ID)
			return err
		})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.LockAccount(ctx, a.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, [][]int64{{b.ID, a.ID}, {a.ID}}, s.AccountLockOrders())
}

func TestFailOn_FiresOnceAfterSkip(t *testing.T) {
	s := New()
	ctx := context.Background()
	account := newAccount(t, s, "1")

	boom := errors.New("disk full")
	s.FailOn("UpdateAccount", 1, boom)

	require.NoError(t, s.UpdateAccount(ctx, account))
	require.ErrorIs(t, s.UpdateAccount(ctx, account), boom)
	require.NoError(t, s.UpdateAccount(ctx, account))
}

func TestFindMicrocredits_ByDate(t *testing.T) {
	s := New()
	ctx := context.Background()
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	records := []models.Microcredit{
		{ExpirationDate: today.AddDate(0, 0, -1), Status: models.MicrocreditPending},
		{ExpirationDate: today.AddDate(0, 0, -1), Status: models.MicrocreditCompleted},
		{ExpirationDate: today, Status: models.MicrocreditAccepted},
		{ExpirationDate: today, Status: models.MicrocreditExpired},
		{ExpirationDate: today.AddDate(0, 0, 1), Status: models.MicrocreditPending},
	}
	for i := range records {
		require.NoError(t, s.CreateMicrocredit(ctx, &records[i]))
	}

	expired, err := s.FindMicrocreditsExpiredBefore(ctx, today)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, records[0].ID, expired[0].ID)

	due, err := s.FindMicrocreditsDueOn(ctx, today)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, records[2].ID, due[0].ID)
}

func TestNotFound(t *testing.T) {
	s := New()
	_, err := s.FindDonationByID(context.Background(), 99)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}
