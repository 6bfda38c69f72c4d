package memory

import (
	"context"
	"fmt"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"sort"
	"sync"
	"time"
)

type TransactionRepository struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	bySource     map[string][]string
	index        map[string][]string
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		transactions: make(map[string]*domain.Transaction),
		bySource:     make(map[string][]string),
		index:        make(map[string][]string),
	}
}

// insertLocked requires r.mu held for writing.
func (r *TransactionRepository) insertLocked(tx *domain.Transaction) {
	stored := *tx
	r.transactions[stored.ID] = &stored

	if stored.FromAccountID != "" {
		r.bySource[stored.FromAccountID] = append(r.bySource[stored.FromAccountID], stored.ID)
		r.index[stored.FromAccountID] = append(r.index[stored.FromAccountID], stored.ID)
	}
	if stored.ToAccountID != "" && stored.ToAccountID != stored.FromAccountID {
		r.index[stored.ToAccountID] = append(r.index[stored.ToAccountID], stored.ID)
	}
}

func (r *TransactionRepository) existsLocked(id string) bool {
	_, exists := r.transactions[id]
	return exists
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.transactions[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	cp := *tx
	return &cp, nil
}

func (r *TransactionRepository) ListBySourceSince(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Transaction
	for _, id := range r.bySource[accountID] {
		tx := r.transactions[id]
		if !tx.Timestamp.Before(since) {
			cp := *tx
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

func (r *TransactionRepository) ListBySource(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.newestLocked(r.bySource[accountID], limit), nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.newestLocked(r.index[accountID], limit), nil
}

func (r *TransactionRepository) newestLocked(ids []string, limit int) []*domain.Transaction {
	result := make([]*domain.Transaction, 0, len(ids))
	for _, id := range ids {
		cp := *r.transactions[id]
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (r *TransactionRepository) ListFlagged(ctx context.Context) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range r.transactions {
		if tx.IsFlagged {
			cp := *tx
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	return result, nil
}
