package memory

import (
	"smartbank/internal/repository"
)

var (
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.AccountRepository     = (*AccountRepository)(nil)
	_ repository.AuditRepository       = (*AuditRepository)(nil)
	_ repository.UnitOfWork            = (*UnitOfWork)(nil)
)

// NewStore wires the in-memory repositories behind one unit of work.
func NewStore() repository.Store {
	accounts := NewAccountRepository()
	transactions := NewTransactionRepository()
	audit := NewAuditRepository()

	return repository.Store{
		Accounts:     accounts,
		Transactions: transactions,
		Audit:        audit,
		UnitOfWork:   NewUnitOfWork(accounts, transactions, audit),
	}
}
