package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountSavings AccountType = "savings"
	AccountCurrent AccountType = "current"
	AccountFD      AccountType = "fd"
)

// DefaultDailyLimit applies to accounts opened without an explicit limit.
var DefaultDailyLimit = decimal.NewFromInt(100000)

type Account struct {
	ID         string          `json:"id"`
	Number     string          `json:"account_number"`
	OwnerID    string          `json:"owner_id"`
	Type       AccountType     `json:"account_type"`
	Balance    decimal.Decimal `json:"balance"`
	IsActive   bool            `json:"is_active"`
	DailyLimit decimal.Decimal `json:"daily_limit"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (a *Account) OwnedBy(userID string) bool {
	return a.OwnerID != "" && a.OwnerID == userID
}

func (t AccountType) Valid() bool {
	switch t {
	case AccountSavings, AccountCurrent, AccountFD:
		return true
	}
	return false
}
