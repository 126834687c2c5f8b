package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/metrics"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository/memstore"
	"github.com/Dan9191/microfin/internal/utils"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type message struct {
	to, subject, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []message
	err  error
}

func (n *fakeNotifier) Notify(to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, message{to: to, subject: subject, body: body})
	return nil
}

func (n *fakeNotifier) to(address string) []message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []message
	for _, m := range n.sent {
		if m.to == address {
			out = append(out, m)
		}
	}
	return out
}

type fakeCodes struct {
	generate func(id int64) (string, error)
	parse    func(code string) (int64, error)
}

func (f fakeCodes) Generate(id int64) (string, error) { return f.generate(id) }
func (f fakeCodes) Parse(code string) (int64, error)  { return f.parse(code) }

type fakeRates struct {
	rate float64
	err  error
}

func (f fakeRates) GetKeyRate(context.Context) (float64, error) { return f.rate, f.err }

type testEnv struct {
	ctx      context.Context
	svc      *Service
	store    *memstore.Store
	notifier *fakeNotifier
	clock    *clock
	registry *prometheus.Registry
	users    int
}

type option func(p *Params)

func newTestEnv(t *testing.T, opts ...option) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	env := &testEnv{
		ctx:      context.Background(),
		store:    memstore.New(),
		notifier: &fakeNotifier{},
		clock:    &clock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)},
		registry: prometheus.NewRegistry(),
	}
	env.store.SetNow(env.clock.Now)

	p := Params{
		Store: env.store,
		Log:   log,
		Config: &config.Config{
			DefaultInterestRate:   21,
			DefaultMicrocreditDur: 30 * 24 * time.Hour,
			DonationTimeout:       time.Minute,
			SchedulerTimezone:     "UTC",
		},
		Notifier: env.notifier,
		Codes:    utils.NewCodeGenerator("test-secret"),
		Metrics:  metrics.New(env.registry),
		Now:      env.clock.Now,
	}
	for _, opt := range opts {
		opt(&p)
	}
	env.svc = NewService(p)
	return env
}

// account creates a user with an account holding balance and returns the account id.
func (e *testEnv) account(t *testing.T, balance string) int64 {
	t.Helper()
	e.users++
	user, err := e.svc.CreateUser(e.ctx, e.email(e.users), fmt.Sprintf("user%d", e.users))
	require.NoError(t, err)
	account, err := e.svc.CreateAccount(e.ctx, user.ID)
	require.NoError(t, err)
	if amount := dec(balance); amount.IsPositive() {
		_, err = e.svc.Deposit(e.ctx, account.ID, account.ID, amount)
		require.NoError(t, err)
	}
	return account.ID
}

func (e *testEnv) email(n int) string {
	return fmt.Sprintf("user%d@example.com", n)
}

func (e *testEnv) emailOf(t *testing.T, accountID int64) string {
	t.Helper()
	user, err := e.store.FindUserByAccountID(e.ctx, accountID)
	require.NoError(t, err)
	return user.Email
}

func (e *testEnv) balance(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	account, err := e.store.FindAccountByID(e.ctx, accountID)
	require.NoError(t, err)
	return account.Amount
}

func (e *testEnv) reserved(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	account, err := e.store.FindAccountByID(e.ctx, accountID)
	require.NoError(t, err)
	return account.ReservedAmount
}

func (e *testEnv) microcredit(t *testing.T, id int64) *models.Microcredit {
	t.Helper()
	mc, err := e.svc.GetMicrocredit(e.ctx, id)
	require.NoError(t, err)
	return mc
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func date(t time.Time) *time.Time { return &t }
