package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeTransfer   TransactionType = "transfer"
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
)

// Transaction is the immutable record of one completed money movement.
// FromAccountID is empty for pure deposits, ToAccountID for pure withdrawals.
type Transaction struct {
	ID            string          `json:"id"`
	Type          TransactionType `json:"transaction_type"`
	FromAccountID string          `json:"from_account_id,omitempty"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description,omitempty"`
	IsFlagged     bool            `json:"is_flagged"`
	FlagReason    string          `json:"flag_reason,omitempty"`
	AnomalyScore  *float64        `json:"anomaly_score,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// TransferRequest is what the surrounding API hands to the ledger.
type TransferRequest struct {
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description,omitempty"`
}

func NewTransfer(from, to *Account, amount decimal.Decimal, description string, at time.Time) *Transaction {
	return &Transaction{
		ID:            uuid.NewString(),
		Type:          TypeTransfer,
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        amount,
		BalanceAfter:  from.Balance.Sub(amount),
		Description:   description,
		Timestamp:     at,
	}
}

// WithVerdict folds a fraud verdict into the record before it is persisted.
func (tx *Transaction) WithVerdict(v FraudVerdict) *Transaction {
	tx.IsFlagged = v.Flagged
	if v.Flagged {
		tx.FlagReason = v.Reason
	}
	if v.Score != nil {
		score := *v.Score
		tx.AnomalyScore = &score
	}
	return tx
}
