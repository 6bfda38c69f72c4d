package ledger

import (
	"context"
	"errors"
	"math/rand/v2"
	"smartbank/internal/audit"
	"smartbank/internal/config"
	"smartbank/internal/domain"
	"smartbank/internal/fraud"
	"smartbank/internal/repository"
	"smartbank/internal/repository/memory"
	"smartbank/pkg/crypto"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = domain.Identity{UserID: "user-a", Role: domain.RoleCustomer}
	stranger = domain.Identity{UserID: "user-z", Role: domain.RoleCustomer}
	admin    = domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
	auditor  = domain.Identity{UserID: "auditor-1", Role: domain.RoleAuditor}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubScorer struct {
	err error
}

func (s stubScorer) Score(context.Context, fraud.Input) (fraud.Score, error) {
	return fraud.Score{Value: -0.42}, s.err
}

type recordingAlerter struct {
	mu      sync.Mutex
	alerted []string
}

func (a *recordingAlerter) NotifyFlagged(_ context.Context, tx *domain.Transaction, _ domain.VerdictSource) {
	a.mu.Lock()
	a.alerted = append(a.alerted, tx.ID)
	a.mu.Unlock()
}

type fallbackCounter struct {
	mu        sync.Mutex
	fallbacks int
}

func (f *fallbackCounter) RecordFraudFallback() {
	f.mu.Lock()
	f.fallbacks++
	f.mu.Unlock()
}

func (f *fallbackCounter) ObserveAnomalyScore(float64) {}

type fixture struct {
	store    repository.Store
	ledger   *TransferLedger
	clock    *fakeClock
	alerter  *recordingAlerter
	recorder *fallbackCounter
}

func testFraudConfig() config.Fraud {
	return config.Fraud{
		LargeAmount:      10000,
		LargeCount:       3,
		Window:           time.Hour,
		WithdrawalRatio:  0.8,
		WithdrawalAmount: 50000,
		Trees:            100,
		Contamination:    0.05,
		Seed:             42,
		TrainPerAcct:     100,
		MinSamples:       10,
		SyntheticCount:   100,
	}
}

func testLedgerConfig() config.Ledger {
	return config.Ledger{LockTimeout: 2 * time.Second, LockStripes: 256, HistoryLimit: 50}
}

func newFixture(t *testing.T, scorer fraud.Scorer, store repository.Store, cfg config.Ledger) *fixture {
	t.Helper()

	f := &fixture{
		store:    store,
		clock:    &fakeClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
		alerter:  &recordingAlerter{},
		recorder: &fallbackCounter{},
	}
	pipeline := fraud.NewPipeline(fraud.NewRuleEngine(testFraudConfig()), scorer, 0.8, f.recorder, nil)
	trail := audit.NewTrail(store.Audit, crypto.NewSigner("test-key", nil), f.clock.Now, nil)
	f.ledger = NewTransferLedger(store, pipeline, trail, cfg,
		WithClock(f.clock.Now),
		WithAlerter(f.alerter),
	)
	return f
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, stubScorer{}, memory.NewStore(), testLedgerConfig())
}

func (f *fixture) open(t *testing.T, id, number, ownerID string, balance int64) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:         id,
		Number:     number,
		OwnerID:    ownerID,
		Type:       domain.AccountSavings,
		Balance:    decimal.NewFromInt(balance),
		IsActive:   true,
		DailyLimit: domain.DefaultDailyLimit,
	}
	require.NoError(t, f.store.Accounts.Save(context.Background(), account))
	return account
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	account, err := f.store.Accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func request(amount int64) domain.TransferRequest {
	return domain.TransferRequest{
		FromAccountNumber: "1000000001",
		ToAccountNumber:   "1000000002",
		Amount:            decimal.NewFromInt(amount),
		Description:       "test",
	}
}

func assertBalance(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "expected balance %d, got %s", want, got)
}

func TestTransfer_CleanTransfer(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 10000)
	f.open(t, "b", "1000000002", "user-b", 1000)

	tx, err := f.ledger.Transfer(context.Background(), request(2000), owner)

	require.NoError(t, err)
	assert.False(t, tx.IsFlagged)
	assert.Empty(t, tx.FlagReason)
	assertBalance(t, 8000, tx.BalanceAfter)
	assertBalance(t, 8000, f.balance(t, "a"))
	assertBalance(t, 3000, f.balance(t, "b"))

	stored, err := f.store.Transactions.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, stored.ID)

	entries, err := f.store.Audit.ListByActor(context.Background(), owner.UserID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionTransfer, entries[0].Action)
	assert.Contains(t, entries[0].Detail, tx.ID)
	assert.Empty(t, f.alerter.alerted)
}

func TestTransfer_InsufficientFundsChangesNothing(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 1000)
	f.open(t, "b", "1000000002", "user-b", 0)

	_, err := f.ledger.Transfer(context.Background(), request(5000), owner)

	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertBalance(t, 1000, f.balance(t, "a"))
	assertBalance(t, 0, f.balance(t, "b"))
	history, _ := f.store.Transactions.ListByAccount(context.Background(), "a", 0)
	assert.Empty(t, history)
}

func TestTransfer_OverDailyLimitIsFlaggedButCompletes(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 200000)
	f.open(t, "b", "1000000002", "user-b", 0)

	tx, err := f.ledger.Transfer(context.Background(), request(150000), owner)

	require.NoError(t, err)
	assert.True(t, tx.IsFlagged)
	assert.Contains(t, tx.FlagReason, "daily limit")
	assertBalance(t, 50000, f.balance(t, "a"))
	assertBalance(t, 150000, f.balance(t, "b"))
	assert.Equal(t, []string{tx.ID}, f.alerter.alerted)

	flagged, err := f.ledger.Flagged(context.Background(), auditor)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, tx.ID, flagged[0].ID)
}

func TestTransfer_RepeatedLargeTransfersFlagged(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 500000)
	f.open(t, "b", "1000000002", "user-b", 0)

	var flags []bool
	for range 5 {
		tx, err := f.ledger.Transfer(context.Background(), request(15000), owner)
		require.NoError(t, err)
		flags = append(flags, tx.IsFlagged)
		if tx.IsFlagged {
			assert.Equal(t, "Multiple large transactions in last hour", tx.FlagReason)
		}
		f.clock.Advance(5 * time.Minute)
	}

	assert.Equal(t, []bool{false, false, false, true, true}, flags)
	assertBalance(t, 425000, f.balance(t, "a"))
}

func TestTransfer_RejectedBeforeStateAccess(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 100)
	f.open(t, "b", "1000000002", "user-b", 0)

	for _, amount := range []int64{0, -50} {
		_, err := f.ledger.Transfer(context.Background(), request(amount), owner)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assertBalance(t, 100, f.balance(t, "a"))
}

func TestTransfer_AccountChecks(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 1000)
	f.open(t, "b", "1000000002", "user-b", 0)
	inactive := f.open(t, "c", "1000000003", owner.UserID, 1000)
	_, err := f.ledger.Deactivate(context.Background(), inactive.Number, admin)
	require.NoError(t, err)

	tests := []struct {
		name  string
		req   domain.TransferRequest
		actor domain.Identity
		want  error
	}{
		{"unknown source", domain.TransferRequest{FromAccountNumber: "1999999999", ToAccountNumber: "1000000002", Amount: decimal.NewFromInt(1)}, owner, domain.ErrAccountNotFound},
		{"unknown destination", domain.TransferRequest{FromAccountNumber: "1000000001", ToAccountNumber: "1999999999", Amount: decimal.NewFromInt(1)}, owner, domain.ErrAccountNotFound},
		{"inactive source", domain.TransferRequest{FromAccountNumber: "1000000003", ToAccountNumber: "1000000002", Amount: decimal.NewFromInt(1)}, owner, domain.ErrAccountInactive},
		{"inactive destination", domain.TransferRequest{FromAccountNumber: "1000000001", ToAccountNumber: "1000000003", Amount: decimal.NewFromInt(1)}, owner, domain.ErrAccountInactive},
		{"not owner", request(1), stranger, domain.ErrNotOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Transfer(context.Background(), tt.req, tt.actor)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assertBalance(t, 1000, f.balance(t, "a"))
	assertBalance(t, 0, f.balance(t, "b"))
}

func TestTransfer_ScorerFailureFailsOpen(t *testing.T) {
	f := newFixture(t, stubScorer{err: errors.New("model exploded")}, memory.NewStore(), testLedgerConfig())
	f.open(t, "a", "1000000001", owner.UserID, 10000)
	f.open(t, "b", "1000000002", "user-b", 1000)

	tx, err := f.ledger.Transfer(context.Background(), request(2000), owner)

	require.NoError(t, err)
	assert.False(t, tx.IsFlagged)
	assert.Equal(t, 1, f.recorder.fallbacks)
	assertBalance(t, 8000, f.balance(t, "a"))
}

func TestTransfer_WithTrainedScorer(t *testing.T) {
	store := memory.NewStore()
	scorer := fraud.NewAnomalyScorer(store.Accounts, store.Transactions, testFraudConfig(), nil)
	require.NoError(t, scorer.Train(context.Background()))
	f := newFixture(t, scorer, store, testLedgerConfig())
	f.open(t, "a", "1000000001", owner.UserID, 10000)
	f.open(t, "b", "1000000002", "user-b", 1000)

	tx, err := f.ledger.Transfer(context.Background(), request(2000), owner)

	require.NoError(t, err)
	assert.False(t, tx.IsFlagged, "ordinary transfer flagged: %s", tx.FlagReason)
	assert.Empty(t, tx.FlagReason)
	assertBalance(t, 8000, f.balance(t, "a"))
}

func TestTransfer_SyntheticModelPassesOrdinaryTransfers(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)
	for day := range 7 {
		for hour := 0; hour < 24; hour += 3 {
			at := start.Add(time.Duration(day)*24*time.Hour + time.Duration(hour)*time.Hour)
			t.Run(at.Format("Mon 15:04"), func(t *testing.T) {
				store := memory.NewStore()
				scorer := fraud.NewAnomalyScorer(store.Accounts, store.Transactions, testFraudConfig(), nil)
				f := newFixture(t, scorer, store, testLedgerConfig())
				f.clock.now = at
				f.open(t, "a", "1000000001", owner.UserID, 10000)
				f.open(t, "b", "1000000002", "user-b", 1000)

				tx, err := f.ledger.Transfer(context.Background(), request(2000), owner)

				require.NoError(t, err)
				assert.False(t, tx.IsFlagged, "flagged: %s", tx.FlagReason)
				assert.Equal(t, fraud.Trained, scorer.State())
			})
		}
	}
}

func TestTransfer_ConcurrentTransfersConserveMoney(t *testing.T) {
	f := newMemoryFixture(t)
	numbers := []string{"1000000001", "1000000002", "1000000003", "1000000004", "1000000005", "1000000006"}
	for i, number := range numbers {
		f.open(t, string(rune('a'+i)), number, owner.UserID, 1000)
	}

	const workers, perWorker = 8, 40
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(w), 7))
			for range perWorker {
				from := r.IntN(len(numbers))
				to := (from + 1 + r.IntN(len(numbers)-1)) % len(numbers)
				_, err := f.ledger.Transfer(context.Background(), domain.TransferRequest{
					FromAccountNumber: numbers[from],
					ToAccountNumber:   numbers[to],
					Amount:            decimal.NewFromInt(1),
				}, owner)
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	total := decimal.Zero
	accounts, err := f.store.Accounts.List(context.Background())
	require.NoError(t, err)
	for _, account := range accounts {
		assert.False(t, account.Balance.IsNegative())
		total = total.Add(account.Balance)
	}
	assertBalance(t, 6000, total)

	var recorded int
	for _, account := range accounts {
		sent, err := f.store.Transactions.ListBySource(context.Background(), account.ID, 0)
		require.NoError(t, err)
		recorded += len(sent)
	}
	assert.Equal(t, workers*perWorker, recorded)
}

func TestTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 5000)
	f.open(t, "b", "1000000002", owner.UserID, 5000)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := request(10)
			if i%2 == 1 {
				req.FromAccountNumber, req.ToAccountNumber = req.ToAccountNumber, req.FromAccountNumber
			}
			_, err := f.ledger.Transfer(context.Background(), req, owner)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertBalance(t, 5000, f.balance(t, "a"))
	assertBalance(t, 5000, f.balance(t, "b"))
}

func TestTransfer_LockTimeout(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.LockTimeout = 30 * time.Millisecond
	f := newFixture(t, stubScorer{}, memory.NewStore(), cfg)
	f.open(t, "a", "1000000001", owner.UserID, 1000)
	f.open(t, "b", "1000000002", "user-b", 0)

	release, err := f.ledger.locks.acquire(context.Background(), "1000000002")
	require.NoError(t, err)
	defer release()

	_, err = f.ledger.Transfer(context.Background(), request(10), owner)

	assert.ErrorIs(t, err, domain.ErrTransferTimeout)
	assertBalance(t, 1000, f.balance(t, "a"))
}

type failingAuditWriter struct {
	repository.Writer
}

func (failingAuditWriter) AppendAudit(context.Context, *domain.AuditLogEntry) error {
	return errors.New("audit store unavailable")
}

type failingAuditUnitOfWork struct {
	inner repository.UnitOfWork
}

func (u failingAuditUnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, w repository.Writer) error) error {
	return u.inner.Within(ctx, func(ctx context.Context, w repository.Writer) error {
		return fn(ctx, failingAuditWriter{Writer: w})
	})
}

func TestTransfer_AuditFailureRollsBackEverything(t *testing.T) {
	store := memory.NewStore()
	store.UnitOfWork = failingAuditUnitOfWork{inner: store.UnitOfWork}
	f := newFixture(t, stubScorer{}, store, testLedgerConfig())
	f.open(t, "a", "1000000001", owner.UserID, 1000)
	f.open(t, "b", "1000000002", "user-b", 0)

	_, err := f.ledger.Transfer(context.Background(), request(400), owner)

	assert.ErrorIs(t, err, domain.ErrPersistence)
	assertBalance(t, 1000, f.balance(t, "a"))
	assertBalance(t, 0, f.balance(t, "b"))
	history, _ := f.store.Transactions.ListByAccount(context.Background(), "a", 0)
	assert.Empty(t, history)
}

func TestFlagged_RequiresReviewerAndIsAudited(t *testing.T) {
	f := newMemoryFixture(t)

	_, err := f.ledger.Flagged(context.Background(), owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.ledger.Flagged(context.Background(), admin)
	require.NoError(t, err)

	entries, err := f.store.Audit.ListByActor(context.Background(), admin.UserID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionFlaggedViewed, entries[0].Action)
}

func TestDeactivate(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 1000)
	f.open(t, "b", "1000000002", "user-b", 0)

	_, err := f.ledger.Deactivate(context.Background(), "1000000002", auditor)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	account, err := f.ledger.Deactivate(context.Background(), "1000000002", admin)
	require.NoError(t, err)
	assert.False(t, account.IsActive)

	_, err = f.ledger.Transfer(context.Background(), request(10), owner)
	assert.ErrorIs(t, err, domain.ErrAccountInactive)

	entries, err := f.store.Audit.ListByActor(context.Background(), admin.UserID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionAccountDeactivated, entries[0].Action)

	_, err = f.ledger.Deactivate(context.Background(), "1999999999", admin)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestHistoryAndTransactionVisibility(t *testing.T) {
	f := newMemoryFixture(t)
	f.open(t, "a", "1000000001", owner.UserID, 1000)
	f.open(t, "b", "1000000002", "user-b", 0)

	first, err := f.ledger.Transfer(context.Background(), request(10), owner)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.ledger.Transfer(context.Background(), request(20), owner)
	require.NoError(t, err)

	history, err := f.ledger.History(context.Background(), "1000000001", owner)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)

	_, err = f.ledger.History(context.Background(), "1000000001", stranger)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	recipient := domain.Identity{UserID: "user-b", Role: domain.RoleCustomer}
	got, err := f.ledger.Transaction(context.Background(), first.ID, recipient)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = f.ledger.Transaction(context.Background(), first.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.ledger.Transaction(context.Background(), first.ID, auditor)
	assert.NoError(t, err)
}
