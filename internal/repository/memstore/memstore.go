// Package memstore is an in-memory repository.Store. Transactions are serialized behind one
// mutex and work on a copy of the data that replaces the committed state only on success.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/microfin/internal/apperrors"
	"github.com/Dan9191/microfin/internal/models"
	"github.com/Dan9191/microfin/internal/repository"
)

type state struct {
	nextID        int64
	users         map[int64]models.User
	accounts      map[int64]models.Account
	transactions  []models.Transaction
	payments      map[int64]models.Payment
	microcredits  map[int64]models.Microcredit
	contributions map[int64]models.Contribution
	donations     map[int64]models.Donation
}

func newState() *state {
	return &state{
		users:         map[int64]models.User{},
		accounts:      map[int64]models.Account{},
		payments:      map[int64]models.Payment{},
		microcredits:  map[int64]models.Microcredit{},
		contributions: map[int64]models.Contribution{},
		donations:     map[int64]models.Donation{},
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:        s.nextID,
		users:         make(map[int64]models.User, len(s.users)),
		accounts:      make(map[int64]models.Account, len(s.accounts)),
		transactions:  append([]models.Transaction(nil), s.transactions...),
		payments:      make(map[int64]models.Payment, len(s.payments)),
		microcredits:  make(map[int64]models.Microcredit, len(s.microcredits)),
		contributions: make(map[int64]models.Contribution, len(s.contributions)),
		donations:     make(map[int64]models.Donation, len(s.donations)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.microcredits {
		c.microcredits[k] = v
	}
	for k, v := range s.contributions {
		c.contributions[k] = v
	}
	for k, v := range s.donations {
		c.donations[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type fault struct {
	skip int
	err  error
}

type database struct {
	mu     sync.Mutex
	st     *state
	now    func() time.Time
	faults map[string]*fault
	locks  [][]int64
}

// lockTrace records the order in which one transaction first locks account rows.
type lockTrace struct {
	ids  []int64
	held map[int64]bool
}

// Store implements repository.Store in memory.
type Store struct {
	db    *database
	tx    *state
	trace *lockTrace
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{db: &database{st: newState(), now: time.Now, faults: map[string]*fault{}}}
}

// SetNow replaces the clock used for created/updated timestamps.
func (s *Store) SetNow(now func() time.Time) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.now = now
}

// AccountLockOrders returns, per finished transaction, the account ids in the order they
// were first locked. Re-locking a row the transaction already holds is not recorded.
func (s *Store) AccountLockOrders() [][]int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([][]int64, len(s.db.locks))
	for i, ids := range s.db.locks {
		out[i] = append([]int64(nil), ids...)
	}
	return out
}

// FailOn makes the named method return err after skip successful calls. The fault fires once.
func (s *Store) FailOn(method string, skip int, err error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.faults[method] = &fault{skip: skip, err: err}
}

func (s *Store) acquire() (*state, func()) {
	if s.tx != nil {
		return s.tx, func() {}
	}
	s.db.mu.Lock()
	return s.db.st, s.db.mu.Unlock
}

// injected is called with the state lock held.
func (s *Store) injected(method string) error {
	f, ok := s.db.faults[method]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	delete(s.db.faults, method)
	return f.err
}

func (s *Store) stamp(t time.Time) time.Time {
	if !t.IsZero() {
		return t
	}
	return s.db.now()
}

// WithTx runs fn against a private copy of the data and commits it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	work := s.db.st.clone()
	trace := &lockTrace{held: map[int64]bool{}}
	defer func() {
		if len(trace.ids) > 0 {
			s.db.locks = append(s.db.locks, trace.ids)
		}
	}()
	if err := fn(&Store{db: s.db, tx: work, trace: trace}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.st = work
	return nil
}

func notFound(entity string, id any) error {
	return apperrors.Newf(apperrors.CodeNotFound, "%s %v not found", entity, id)
}

// ─── Users & Accounts ───────────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	st, release := s.acquire()
	defer release()
	user.ID = st.id()
	user.CreatedAt = s.stamp(user.CreatedAt)
	st.users[user.ID] = *user
	return nil
}

func (s *Store) FindUserByAccountID(ctx context.Context, accountID int64) (*models.User, error) {
	st, release := s.acquire()
	defer release()
	account, ok := st.accounts[accountID]
	if !ok {
		return nil, notFound("account", accountID)
	}
	user, ok := st.users[account.UserID]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "user for account %d not found", accountID)
	}
	return &user, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("CreateAccount"); err != nil {
		return err
	}
	account.ID = st.id()
	account.CreatedAt = s.stamp(account.CreatedAt)
	account.UpdatedAt = account.CreatedAt
	st.accounts[account.ID] = *account
	return nil
}

func (s *Store) FindAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	st, release := s.acquire()
	defer release()
	account, ok := st.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	return &account, nil
}

func (s *Store) FindAccountByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	st, release := s.acquire()
	defer release()
	var found *models.Account
	for _, account := range st.accounts {
		if account.UserID != userID {
			continue
		}
		if found == nil || account.ID < found.ID {
			a := account
			found = &a
		}
	}
	if found == nil {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "account for user %d not found", userID)
	}
	return found, nil
}

func (s *Store) LockAccount(ctx context.Context, id int64) (*models.Account, error) {
	account, err := s.FindAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.trace != nil && !s.trace.held[id] {
		s.trace.held[id] = true
		s.trace.ids = append(s.trace.ids, id)
	}
	return account, nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("UpdateAccount"); err != nil {
		return err
	}
	if _, ok := st.accounts[account.ID]; !ok {
		return notFound("account", account.ID)
	}
	account.UpdatedAt = s.db.now()
	st.accounts[account.ID] = *account
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("CreateTransaction"); err != nil {
		return err
	}
	tx.ID = st.id()
	tx.CreatedAt = s.stamp(tx.CreatedAt)
	st.transactions = append(st.transactions, *tx)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	st, release := s.acquire()
	defer release()
	var result []models.Transaction
	for i := len(st.transactions) - 1; i >= 0; i-- {
		if st.transactions[i].AccountID == accountID {
			result = append(result, st.transactions[i])
		}
	}
	return result, nil
}

// ─── Payments ───────────────────────────────────────────────────────────────

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("CreatePayment"); err != nil {
		return err
	}
	p.ID = st.id()
	p.CreatedAt = s.stamp(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	st.payments[p.ID] = *p
	return nil
}

func (s *Store) FindPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	st, release := s.acquire()
	defer release()
	p, ok := st.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return &p, nil
}

func (s *Store) FindPaymentByCode(ctx context.Context, code string) (*models.Payment, error) {
	st, release := s.acquire()
	defer release()
	for _, p := range st.payments {
		if p.Code != nil && *p.Code == code {
			found := p
			return &found, nil
		}
	}
	return nil, notFound("payment with code", code)
}

func (s *Store) LockPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.FindPaymentByID(ctx, id)
}

func (s *Store) UpdatePayment(ctx context.Context, p *models.Payment) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("UpdatePayment"); err != nil {
		return err
	}
	if _, ok := st.payments[p.ID]; !ok {
		return notFound("payment", p.ID)
	}
	p.UpdatedAt = s.db.now()
	st.payments[p.ID] = *p
	return nil
}

// ─── Microcredits ───────────────────────────────────────────────────────────

func (s *Store) CreateMicrocredit(ctx context.Context, mc *models.Microcredit) error {
	st, release := s.acquire()
	defer release()
	mc.ID = st.id()
	mc.CreatedAt = s.stamp(mc.CreatedAt)
	mc.UpdatedAt = mc.CreatedAt
	st.microcredits[mc.ID] = *mc
	return nil
}

func (s *Store) FindMicrocreditByID(ctx context.Context, id int64) (*models.Microcredit, error) {
	st, release := s.acquire()
	defer release()
	mc, ok := st.microcredits[id]
	if !ok {
		return nil, notFound("microcredit", id)
	}
	return &mc, nil
}

func (s *Store) LockMicrocredit(ctx context.Context, id int64) (*models.Microcredit, error) {
	return s.FindMicrocreditByID(ctx, id)
}

func (s *Store) UpdateMicrocredit(ctx context.Context, mc *models.Microcredit) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("UpdateMicrocredit"); err != nil {
		return err
	}
	if _, ok := st.microcredits[mc.ID]; !ok {
		return notFound("microcredit", mc.ID)
	}
	mc.UpdatedAt = s.db.now()
	st.microcredits[mc.ID] = *mc
	return nil
}

func (s *Store) selectMicrocredits(match func(models.Microcredit) bool) []models.Microcredit {
	st, release := s.acquire()
	defer release()
	var result []models.Microcredit
	for _, mc := range st.microcredits {
		if match(mc) {
			result = append(result, mc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) ListMicrocreditsByStatus(ctx context.Context, status models.MicrocreditStatus) ([]models.Microcredit, error) {
	return s.selectMicrocredits(func(mc models.Microcredit) bool { return mc.Status == status }), nil
}

func (s *Store) FindMicrocreditsExpiredBefore(ctx context.Context, date time.Time) ([]models.Microcredit, error) {
	return s.selectMicrocredits(func(mc models.Microcredit) bool {
		return mc.ExpirationDate.Before(date) && !mc.Status.IsTerminal()
	}), nil
}

func (s *Store) FindMicrocreditsDueOn(ctx context.Context, date time.Time) ([]models.Microcredit, error) {
	return s.selectMicrocredits(func(mc models.Microcredit) bool {
		return mc.ExpirationDate.Equal(date) &&
			(mc.Status == models.MicrocreditPending || mc.Status == models.MicrocreditAccepted)
	}), nil
}

func (s *Store) CountMicrocreditsByBorrower(ctx context.Context, accountID int64, status models.MicrocreditStatus) (int, error) {
	return len(s.selectMicrocredits(func(mc models.Microcredit) bool {
		return mc.BorrowerAccount == accountID && mc.Status == status
	})), nil
}

func (s *Store) CreateContribution(ctx context.Context, c *models.Contribution) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("CreateContribution"); err != nil {
		return err
	}
	c.ID = st.id()
	c.CreatedAt = s.stamp(c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	st.contributions[c.ID] = *c
	return nil
}

func (s *Store) ListContributions(ctx context.Context, microcreditID int64) ([]models.Contribution, error) {
	st, release := s.acquire()
	defer release()
	var result []models.Contribution
	for _, c := range st.contributions {
		if c.MicrocreditID == microcreditID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) UpdateContribution(ctx context.Context, c *models.Contribution) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("UpdateContribution"); err != nil {
		return err
	}
	if _, ok := st.contributions[c.ID]; !ok {
		return notFound("contribution", c.ID)
	}
	c.UpdatedAt = s.db.now()
	st.contributions[c.ID] = *c
	return nil
}

// ─── Donations ──────────────────────────────────────────────────────────────

func (s *Store) CreateDonation(ctx context.Context, d *models.Donation) error {
	st, release := s.acquire()
	defer release()
	d.ID = st.id()
	d.CreatedAt = s.stamp(d.CreatedAt)
	d.UpdatedAt = d.CreatedAt
	st.donations[d.ID] = *d
	return nil
}

func (s *Store) FindDonationByID(ctx context.Context, id int64) (*models.Donation, error) {
	st, release := s.acquire()
	defer release()
	d, ok := st.donations[id]
	if !ok {
		return nil, notFound("donation", id)
	}
	return &d, nil
}

func (s *Store) LockDonation(ctx context.Context, id int64) (*models.Donation, error) {
	return s.FindDonationByID(ctx, id)
}

func (s *Store) UpdateDonation(ctx context.Context, d *models.Donation) error {
	st, release := s.acquire()
	defer release()
	if err := s.injected("UpdateDonation"); err != nil {
		return err
	}
	if _, ok := st.donations[d.ID]; !ok {
		return notFound("donation", d.ID)
	}
	d.UpdatedAt = s.db.now()
	st.donations[d.ID] = *d
	return nil
}

func (s *Store) FindPendingDonationsBefore(ctx context.Context, cutoff time.Time) ([]models.Donation, error) {
	st, release := s.acquire()
	defer release()
	var result []models.Donation
	for _, d := range st.donations {
		if d.Status == models.DonationPending && d.CreatedAt.Before(cutoff) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
