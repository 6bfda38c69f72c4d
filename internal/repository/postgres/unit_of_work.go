package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"smartbank/internal/domain"
	"smartbank/internal/repository"

	"github.com/shopspring/decimal"
)

// UnitOfWork runs a Writer inside one database transaction.
type UnitOfWork struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewUnitOfWork(db *sql.DB, logger *slog.Logger) *UnitOfWork {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnitOfWork{db: db, logger: logger}
}

func (u *UnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, w repository.Writer) error) error {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	if err := fn(ctx, &txWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			u.logger.Error("error rolling back transaction", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) (bool, error) {
	return compareAndSwap(ctx, w.tx, accountID, expected, next)
}

func (w *txWriter) SetActive(ctx context.Context, accountID string, active bool) error {
	result, err := w.tx.ExecContext(ctx, `UPDATE accounts SET is_active = $2 WHERE id = $1`, accountID, active)
	if err != nil {
		return fmt.Errorf("error updating account %s: %w", accountID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected for account update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: account %s", repository.ErrNotFound, accountID)
	}
	return nil
}

func (w *txWriter) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	return insertTransaction(ctx, w.tx, tx)
}

func (w *txWriter) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	return insertAudit(ctx, w.tx, entry)
}
