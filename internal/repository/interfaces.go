package repository

import (
	"context"
	"errors"
	"smartbank/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	List(ctx context.Context) ([]*domain.Account, error)
	CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) (bool, error)
}

type TransactionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	// ListBySourceSince returns transactions sent from accountID at or after since, oldest first.
	ListBySourceSince(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error)
	// ListBySource returns up to limit of the most recent transactions sent from accountID.
	ListBySource(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error)
	// ListByAccount returns up to limit transactions touching accountID, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error)
	ListFlagged(ctx context.Context) ([]*domain.Transaction, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	ListByActor(ctx context.Context, actorID string) ([]*domain.AuditLogEntry, error)
}

// Writer is the set of mutations allowed inside a unit of work.
type Writer interface {
	CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) (bool, error)
	SetActive(ctx context.Context, accountID string, active bool) error
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
	AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error
}

// UnitOfWork applies everything written through the Writer atomically:
// if fn returns an error or the commit fails, none of it becomes visible.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
}

type Store struct {
	Accounts     AccountRepository
	Transactions TransactionRepository
	Audit        AuditRepository
	UnitOfWork   UnitOfWork
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
	ErrConflict  = errors.New("concurrent modification")
)
