// Package postgres implements the repository interfaces on PostgreSQL through
// database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"smartbank/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects, pings and applies the embedded schema.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("error closing database after ping failure: %w", closeErr)
		}
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	if err = Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}

// NewStore wires the Postgres repositories behind one unit of work.
func NewStore(db *sql.DB, logger *slog.Logger) repository.Store {
	if logger == nil {
		logger = slog.Default()
	}

	return repository.Store{
		Accounts:     NewAccountRepository(db),
		Transactions: NewTransactionRepository(db),
		Audit:        NewAuditRepository(db),
		UnitOfWork:   NewUnitOfWork(db, logger),
	}
}

func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, what)
	}
	return fmt.Errorf("error on %s: %w", what, err)
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Default().Error("error closing rows", slog.String("error", err.Error()))
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ repository.AccountRepository     = (*AccountRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.AuditRepository       = (*AuditRepository)(nil)
	_ repository.UnitOfWork            = (*UnitOfWork)(nil)
)
