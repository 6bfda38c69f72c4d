package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"smartbank/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

const transactionColumns = `id, transaction_type, from_account_id, to_account_id, amount, balance_after, description, is_flagged, flag_reason, anomaly_score, timestamp`

type TransactionRepository struct {
	db queryer
}

func NewTransactionRepository(db queryer) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return nil, mapError(err, "transaction "+id)
	}
	return tx, nil
}

func (r *TransactionRepository) ListBySourceSince(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE from_account_id = $1 AND timestamp >= $2
		 ORDER BY timestamp ASC, id ASC`,
		accountID, since,
	)
}

func (r *TransactionRepository) ListBySource(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE from_account_id = $1
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $2`,
		accountID, limit,
	)
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE from_account_id = $1 OR to_account_id = $1
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $2`,
		accountID, limit,
	)
}

func (r *TransactionRepository) ListFlagged(ctx context.Context) ([]*domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE is_flagged
		 ORDER BY timestamp DESC, id DESC`,
	)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error fetching transactions: %w", err)
	}
	defer closeRows(rows)

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return transactions, nil
}

func insertTransaction(ctx context.Context, db queryer, tx *domain.Transaction) error {
	var score sql.NullFloat64
	if tx.AnomalyScore != nil {
		score = sql.NullFloat64{Float64: *tx.AnomalyScore, Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tx.ID, string(tx.Type), nullString(tx.FromAccountID), nullString(tx.ToAccountID),
		tx.Amount, tx.BalanceAfter, nullString(tx.Description),
		tx.IsFlagged, nullString(tx.FlagReason), score, tx.Timestamp,
	)
	return mapError(err, "transaction "+tx.ID)
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var (
		tx                            domain.Transaction
		txType                        string
		from, to, description, reason sql.NullString
		balanceAfter                  decimal.NullDecimal
		score                         sql.NullFloat64
	)

	err := row.Scan(
		&tx.ID, &txType, &from, &to, &tx.Amount, &balanceAfter,
		&description, &tx.IsFlagged, &reason, &score, &tx.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.FromAccountID = from.String
	tx.ToAccountID = to.String
	tx.Description = description.String
	tx.FlagReason = reason.String
	if balanceAfter.Valid {
		tx.BalanceAfter = balanceAfter.Decimal
	}
	if score.Valid {
		value := score.Float64
		tx.AnomalyScore = &value
	}
	return &tx, nil
}
