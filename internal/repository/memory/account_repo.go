package memory

import (
	"context"
	"fmt"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	mu          sync.RWMutex
	accounts    map[string]*domain.Account
	numberIndex map[string]string
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts:    make(map[string]*domain.Account),
		numberIndex: make(map[string]string),
	}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	if !account.Type.Valid() {
		return fmt.Errorf("%w: account type %q", domain.ErrValidation, account.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
	}
	if _, exists := r.numberIndex[account.Number]; exists {
		return fmt.Errorf("%w: account number %s", repository.ErrDuplicate, account.Number)
	}

	stored := *account
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.accounts[stored.ID] = &stored
	r.numberIndex[stored.Number] = stored.ID

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	cp := *account
	return &cp, nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.numberIndex[number]
	if !exists {
		return nil, fmt.Errorf("%w: account number %s", repository.ErrNotFound, number)
	}
	cp := *r.accounts[id]
	return &cp, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		cp := *account
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Number < result[j].Number
	})

	return result, nil
}

func (r *AccountRepository) CompareAndSwapBalance(ctx context.Context, accountID string, expected, next decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.swapLocked(accountID, expected, next)
}

// swapLocked requires r.mu held for writing.
func (r *AccountRepository) swapLocked(accountID string, expected, next decimal.Decimal) (bool, error) {
	account, exists := r.accounts[accountID]
	if !exists {
		return false, fmt.Errorf("%w: account %s", repository.ErrNotFound, accountID)
	}
	if !account.Balance.Equal(expected) {
		return false, nil
	}
	if next.IsNegative() {
		return false, fmt.Errorf("%w: balance of %s would become %s", repository.ErrConflict, accountID, next)
	}
	account.Balance = next
	return true, nil
}

func (r *AccountRepository) balance(accountID string) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return decimal.Zero, false
	}
	return account.Balance, true
}
