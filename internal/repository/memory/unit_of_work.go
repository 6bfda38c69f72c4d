package memory

import (
	"context"
	"fmt"
	"smartbank/internal/domain"
	"smartbank/internal/repository"

	"github.com/shopspring/decimal"
)

// UnitOfWork stages writes and applies them under the locks of all three
// repositories at once, so readers see either none or all of a commit.
type UnitOfWork struct {
	accounts     *AccountRepository
	transactions *TransactionRepository
	audit        *AuditRepository
}

func NewUnitOfWork(accounts *AccountRepository, transactions *TransactionRepository, audit *AuditRepository) *UnitOfWork {
	return &UnitOfWork{
		accounts:     accounts,
		transactions: transactions,
		audit:        audit,
	}
}

type balanceSwap struct {
	accountID string
	expected  decimal.Decimal
	next      decimal.Decimal
}

type activeChange struct {
	accountID string
	active    bool
}

type stagedWriter struct {
	uow          *UnitOfWork
	swaps        []balanceSwap
	pending      map[string]decimal.Decimal
	activeness   []activeChange
	transactions []*domain.Transaction
	entries      []*domain.AuditLogEntry
}

func (u *UnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, w repository.Writer) error) error {
	w := &stagedWriter{
		uow:     u,
		pending: make(map[string]decimal.Decimal),
	}

	if err := fn(ctx, w); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return u.commit(w)
}

func (u *UnitOfWork) commit(w *stagedWriter) error {
	u.accounts.mu.Lock()
	defer u.accounts.mu.Unlock()
	u.transactions.mu.Lock()
	defer u.transactions.mu.Unlock()
	u.audit.mu.Lock()
	defer u.audit.mu.Unlock()

	balances := make(map[string]decimal.Decimal)
	for _, swap := range w.swaps {
		current, ok := balances[swap.accountID]
		if !ok {
			account, exists := u.accounts.accounts[swap.accountID]
			if !exists {
				return fmt.Errorf("%w: account %s", repository.ErrNotFound, swap.accountID)
			}
			current = account.Balance
		}
		if !current.Equal(swap.expected) {
			return fmt.Errorf("%w: balance of account %s changed before commit", repository.ErrConflict, swap.accountID)
		}
		balances[swap.accountID] = swap.next
	}
	for _, change := range w.activeness {
		if _, exists := u.accounts.accounts[change.accountID]; !exists {
			return fmt.Errorf("%w: account %s", repository.ErrNotFound, change.accountID)
		}
	}
	seen := make(map[string]struct{}, len(w.transactions))
	for _, tx := range w.transactions {
		if _, dup := seen[tx.ID]; dup || u.transactions.existsLocked(tx.ID) {
			return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
		}
		seen[tx.ID] = struct{}{}
	}
	for _, entry := range w.entries {
		if _, exists := u.audit.ids[entry.ID]; exists {
			return fmt.Errorf("%w: audit entry %s", repository.ErrDuplicate, entry.ID)
		}
	}

	for id, balance := range balances {
		u.accounts.accounts[id].Balance = balance
	}
	for _, change := range w.activeness {
		u.accounts.accounts[change.accountID].IsActive = change.active
	}
	for _, tx := range w.transactions {
		u.transactions.insertLocked(tx)
	}
	for _, entry := range w.entries {
		// ids were checked above, so this cannot fail part-way.
		_ = u.audit.appendLocked(entry)
	}

	return nil
}

func (w *stagedWriter) CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) (bool, error) {
	current, staged := w.pending[accountID]
	if !staged {
		balance, exists := w.uow.accounts.balance(accountID)
		if !exists {
			return false, fmt.Errorf("%w: account %s", repository.ErrNotFound, accountID)
		}
		current = balance
	}
	if !current.Equal(expected) {
		return false, nil
	}
	if next.IsNegative() {
		return false, fmt.Errorf("%w: balance of %s would become %s", repository.ErrConflict, accountID, next)
	}

	w.pending[accountID] = next
	w.swaps = append(w.swaps, balanceSwap{accountID: accountID, expected: expected, next: next})
	return true, nil
}

func (w *stagedWriter) SetActive(ctx context.Context, accountID string, active bool) error {
	if _, exists := w.uow.accounts.balance(accountID); !exists {
		return fmt.Errorf("%w: account %s", repository.ErrNotFound, accountID)
	}
	w.activeness = append(w.activeness, activeChange{accountID: accountID, active: active})
	return nil
}

func (w *stagedWriter) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	cp := *tx
	w.transactions = append(w.transactions, &cp)
	return nil
}

func (w *stagedWriter) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}
	cp := *entry
	w.entries = append(w.entries, &cp)
	return nil
}
