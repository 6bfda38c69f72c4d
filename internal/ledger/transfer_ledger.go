package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"smartbank/internal/audit"
	"smartbank/internal/config"
	"smartbank/internal/domain"
	"smartbank/internal/fraud"
	"smartbank/internal/repository"
	"smartbank/pkg/metrics"
	"smartbank/pkg/validator"
	"time"

	"github.com/shopspring/decimal"
)

const historyWindow = 30 * 24 * time.Hour

type Classifier interface {
	Classify(ctx context.Context, in fraud.Input) domain.FraudVerdict
}

// Metrics is the subset of *metrics.MetricsCollector the ledger reports to.
type Metrics interface {
	RecordTransfer(outcome string, duration time.Duration)
	RecordFlagged(source string)
	ObserveLockWait(d time.Duration)
}

type Alerter interface {
	NotifyFlagged(ctx context.Context, tx *domain.Transaction, source domain.VerdictSource)
}

type Option func(*TransferLedger)

func WithClock(now func() time.Time) Option {
	return func(l *TransferLedger) { l.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(l *TransferLedger) { l.metrics = m }
}

func WithAlerter(a Alerter) Option {
	return func(l *TransferLedger) { l.alerter = a }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *TransferLedger) { l.logger = logger }
}

// TransferLedger moves money between accounts. Balance changes, the
// transaction record and the audit entry of one transfer commit together.
type TransferLedger struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	uow          repository.UnitOfWork
	pipeline     Classifier
	trail        *audit.Trail
	validator    *validator.TransferValidator
	locks        *lockTable
	lockTimeout  time.Duration
	historyLimit int
	now          func() time.Time
	metrics      Metrics
	alerter      Alerter
	logger       *slog.Logger
}

func NewTransferLedger(store repository.Store, pipeline Classifier, trail *audit.Trail, cfg config.Ledger, opts ...Option) *TransferLedger {
	l := &TransferLedger{
		accounts:     store.Accounts,
		transactions: store.Transactions,
		uow:          store.UnitOfWork,
		pipeline:     pipeline,
		trail:        trail,
		validator:    validator.NewTransferValidator(),
		locks:        newLockTable(cfg.LockStripes),
		lockTimeout:  cfg.LockTimeout,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
		metrics:      noopMetrics{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.metrics == nil {
		l.metrics = noopMetrics{}
	}
	return l
}

func (l *TransferLedger) Transfer(ctx context.Context, req domain.TransferRequest, actor domain.Identity) (*domain.Transaction, error) {
	start := time.Now()

	tx, verdict, err := l.transfer(ctx, req, actor)
	l.metrics.RecordTransfer(outcome(err), time.Since(start))
	if err != nil {
		l.logger.InfoContext(ctx, "Transfer rejected",
			slog.String("from_account", req.FromAccountNumber),
			slog.String("to_account", req.ToAccountNumber),
			slog.String("actor_id", actor.UserID),
			slog.String("error", err.Error()))
		return nil, err
	}

	l.logger.InfoContext(ctx, "Transfer completed",
		slog.String("transaction_id", tx.ID),
		slog.String("amount", tx.Amount.String()),
		slog.Bool("flagged", tx.IsFlagged))

	if tx.IsFlagged {
		l.metrics.RecordFlagged(string(verdict.Source))
		l.logger.WarnContext(ctx, "Transfer flagged",
			slog.String("transaction_id", tx.ID),
			slog.String("source", string(verdict.Source)),
			slog.String("reason", tx.FlagReason))
		if l.alerter != nil {
			l.alerter.NotifyFlagged(context.WithoutCancel(ctx), tx, verdict.Source)
		}
	}

	return tx, nil
}

func (l *TransferLedger) transfer(ctx context.Context, req domain.TransferRequest, actor domain.Identity) (*domain.Transaction, domain.FraudVerdict, error) {
	var verdict domain.FraudVerdict

	if err := l.validator.ValidateTransfer(req); err != nil {
		return nil, verdict, err
	}

	release, err := l.lock(ctx, req.FromAccountNumber, req.ToAccountNumber)
	if err != nil {
		return nil, verdict, err
	}
	defer release()

	source, err := l.resolve(ctx, req.FromAccountNumber)
	if err != nil {
		return nil, verdict, err
	}
	if !source.OwnedBy(actor.UserID) {
		return nil, verdict, fmt.Errorf("%w: %s", domain.ErrNotOwner, source.Number)
	}

	destination, err := l.resolve(ctx, req.ToAccountNumber)
	if err != nil {
		return nil, verdict, err
	}

	if source.Balance.LessThan(req.Amount) {
		return nil, verdict, fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, source.Balance.StringFixed(2), req.Amount.StringFixed(2))
	}

	now := l.now()
	verdict = l.pipeline.Classify(ctx, fraud.Input{
		Amount:  req.Amount,
		Account: source,
		History: l.recentHistory(ctx, source.ID, now),
		Now:     now,
	})

	tx := domain.NewTransfer(source, destination, req.Amount, req.Description, now).WithVerdict(verdict)
	entry := l.trail.Entry(actor.UserID, domain.ActionTransfer, fmt.Sprintf(
		"transaction=%s from=%s to=%s amount=%s flagged=%t",
		tx.ID, source.Number, destination.Number, req.Amount.StringFixed(2), tx.IsFlagged,
	))

	err = l.uow.Within(ctx, func(ctx context.Context, w repository.Writer) error {
		if err := swap(ctx, w, source, source.Balance.Sub(req.Amount)); err != nil {
			return err
		}
		if err := swap(ctx, w, destination, destination.Balance.Add(req.Amount)); err != nil {
			return err
		}
		if err := w.SaveTransaction(ctx, tx); err != nil {
			return err
		}
		return w.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, verdict, fmt.Errorf("%w: transfer %s: %w", domain.ErrPersistence, tx.ID, err)
	}

	return tx, verdict, nil
}

func swap(ctx context.Context, w repository.Writer, account *domain.Account, next decimal.Decimal) error {
	ok, err := w.CompareAndSwapBalance(ctx, account.ID, account.Balance, next)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: balance of account %s", repository.ErrConflict, account.Number)
	}
	return nil
}

// lock takes the stripes of all given account numbers within lockTimeout.
func (l *TransferLedger) lock(ctx context.Context, numbers ...string) (func(), error) {
	waitStart := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	release, err := l.locks.acquire(lockCtx, numbers...)
	l.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: after %s", domain.ErrTransferTimeout, l.lockTimeout)
	}
	return release, nil
}

func (l *TransferLedger) resolve(ctx context.Context, number string) (*domain.Account, error) {
	account, err := l.accounts.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, number)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountInactive, number)
	}
	return account, nil
}

// recentHistory reads the source's outgoing transfers for the fraud stages.
// A failed read leaves the stages with no history rather than failing the
// transfer.
func (l *TransferLedger) recentHistory(ctx context.Context, accountID string, now time.Time) []*domain.Transaction {
	history, err := l.transactions.ListBySourceSince(ctx, accountID, now.Add(-historyWindow))
	if err != nil {
		l.logger.WarnContext(ctx, "Could not load transfer history for fraud checks",
			slog.String("account_id", accountID),
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrFraudComponentUnavailable, err).Error()))
		return nil
	}
	return history
}

// History returns the most recent transactions touching an account, newest first.
func (l *TransferLedger) History(ctx context.Context, number string, actor domain.Identity) ([]*domain.Transaction, error) {
	account, err := l.accounts.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, number)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if !account.OwnedBy(actor.UserID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOwner, number)
	}

	txs, err := l.transactions.ListByAccount(ctx, account.ID, l.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return txs, nil
}

// Transaction returns one transaction to a party of it or to a fraud reviewer.
func (l *TransferLedger) Transaction(ctx context.Context, id string, actor domain.Identity) (*domain.Transaction, error) {
	tx, err := l.transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if actor.CanReviewFraud() {
		return tx, nil
	}

	for _, accountID := range []string{tx.FromAccountID, tx.ToAccountID} {
		if accountID == "" {
			continue
		}
		account, err := l.accounts.GetByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		if account.OwnedBy(actor.UserID) {
			return tx, nil
		}
	}

	// not a party to it; report it as missing rather than confirm it exists
	return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
}

// Flagged lists every flagged transaction for admins and auditors. Each
// viewing is itself audited; if that write fails nothing is returned.
func (l *TransferLedger) Flagged(ctx context.Context, actor domain.Identity) ([]*domain.Transaction, error) {
	if !actor.CanReviewFraud() {
		return nil, fmt.Errorf("%w: role %s cannot review flagged transactions", domain.ErrForbidden, actor.Role)
	}

	txs, err := l.transactions.ListFlagged(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	if err := l.trail.Record(ctx, actor.UserID, domain.ActionFlaggedViewed, fmt.Sprintf("count=%d", len(txs))); err != nil {
		return nil, err
	}

	return txs, nil
}

// Deactivate marks an account inactive. It waits for in-flight transfers on
// the account and writes the change with its audit entry as one unit.
func (l *TransferLedger) Deactivate(ctx context.Context, number string, actor domain.Identity) (*domain.Account, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: role %s cannot deactivate accounts", domain.ErrForbidden, actor.Role)
	}

	release, err := l.lock(ctx, number)
	if err != nil {
		return nil, err
	}
	defer release()

	account, err := l.accounts.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, number)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if !account.IsActive {
		return account, nil
	}

	entry := l.trail.Entry(actor.UserID, domain.ActionAccountDeactivated, "account="+number)
	err = l.uow.Within(ctx, func(ctx context.Context, w repository.Writer) error {
		if err := w.SetActive(ctx, account.ID, false); err != nil {
			return err
		}
		return w.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: deactivate %s: %w", domain.ErrPersistence, number, err)
	}

	l.logger.InfoContext(ctx, "Account deactivated",
		slog.String("account_number", number),
		slog.String("actor_id", actor.UserID))

	account.IsActive = false
	return account, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.Is(err, domain.ErrTransferTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, domain.ErrPersistence), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeRejected
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordTransfer(string, time.Duration) {}
func (noopMetrics) RecordFlagged(string)                 {}
func (noopMetrics) ObserveLockWait(time.Duration)        {}
