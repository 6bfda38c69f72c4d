package memory

import (
	"context"
	"fmt"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"sync"
)

// AuditRepository is append-only; entries keep insertion order.
type AuditRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditLogEntry
	ids     map[string]struct{}
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{
		ids: make(map[string]struct{}),
	}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.appendLocked(entry)
}

func (r *AuditRepository) appendLocked(entry *domain.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}
	if _, exists := r.ids[entry.ID]; exists {
		return fmt.Errorf("%w: audit entry %s", repository.ErrDuplicate, entry.ID)
	}
	stored := *entry
	r.entries = append(r.entries, &stored)
	r.ids[stored.ID] = struct{}{}
	return nil
}

func (r *AuditRepository) ListByActor(ctx context.Context, actorID string) ([]*domain.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.AuditLogEntry
	for _, entry := range r.entries {
		if entry.ActorID == actorID {
			cp := *entry
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *AuditRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
