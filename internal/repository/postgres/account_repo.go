package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"time"

	"github.com/shopspring/decimal"
)

const accountColumns = `id, account_number, owner_id, account_type, balance, is_active, daily_limit, created_at`

type AccountRepository struct {
	db queryer
}

func NewAccountRepository(db queryer) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	if !account.Type.Valid() {
		return fmt.Errorf("%w: account type %q", domain.ErrValidation, account.Type)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))`,
		account.ID, account.Number, account.OwnerID, string(account.Type),
		account.Balance, account.IsActive, account.DailyLimit, nullTime(account.CreatedAt),
	)
	return mapError(err, "account "+account.Number)
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err, "account "+id)
	}
	return account, nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	account, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err, "account number "+number)
	}
	return account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY account_number`)
	if err != nil {
		return nil, fmt.Errorf("error fetching accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over accounts: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) (bool, error) {
	return compareAndSwap(ctx, r.db, accountID, expected, next)
}

func compareAndSwap(ctx context.Context, db queryer, accountID string, expected, next decimal.Decimal) (bool, error) {
	if next.IsNegative() {
		return false, fmt.Errorf("%w: balance of %s would become %s", repository.ErrConflict, accountID, next)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE accounts SET balance = $3 WHERE id = $1 AND balance = $2`,
		accountID, expected, next,
	)
	if err != nil {
		return false, fmt.Errorf("error updating balance of %s: %w", accountID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for balance update: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking account %s: %w", accountID, err)
	}
	if !exists {
		return false, fmt.Errorf("%w: account %s", repository.ErrNotFound, accountID)
	}
	return false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var account domain.Account
	var accountType string
	err := row.Scan(
		&account.ID, &account.Number, &account.OwnerID, &accountType,
		&account.Balance, &account.IsActive, &account.DailyLimit, &account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Type = domain.AccountType(accountType)
	return &account, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
