package audit

import (
	"context"
	"errors"
	"smartbank/internal/domain"
	"smartbank/internal/repository/memory"
	"smartbank/pkg/crypto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestTrail(repo *memory.AuditRepository) *Trail {
	return NewTrail(repo, crypto.NewSigner("audit-key", nil), func() time.Time { return fixedNow }, nil)
}

func TestTrail_RecordAppendsSignedEntry(t *testing.T) {
	repo := memory.NewAuditRepository()
	trail := newTestTrail(repo)

	err := trail.Record(context.Background(), "admin-1", domain.ActionFlaggedViewed, "count=3")

	require.NoError(t, err)
	entries, err := repo.ListByActor(context.Background(), "admin-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionFlaggedViewed, entries[0].Action)
	assert.Equal(t, fixedNow, entries[0].Timestamp)
	assert.NoError(t, trail.Verify(entries[0]))
}

func TestTrail_VerifyDetectsTampering(t *testing.T) {
	trail := newTestTrail(memory.NewAuditRepository())
	entry := trail.Entry("u1", domain.ActionTransfer, "amount=100")

	entry.Detail = "amount=1"

	assert.ErrorIs(t, trail.Verify(entry), crypto.ErrInvalidSignature)
}

func TestTrail_SequenceIsTotal(t *testing.T) {
	trail := newTestTrail(memory.NewAuditRepository())

	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := trail.Entry("u1", domain.ActionTransfer, "")
			mu.Lock()
			seen[entry.Seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for i := uint64(1); i <= 50; i++ {
		assert.True(t, seen[i], "missing seq %d", i)
	}
}

type brokenRepo struct{}

func (brokenRepo) Append(context.Context, *domain.AuditLogEntry) error {
	return errors.New("disk full")
}

func (brokenRepo) ListByActor(context.Context, string) ([]*domain.AuditLogEntry, error) {
	return nil, nil
}

func TestTrail_FailedWriteKeepsItsSequenceNumber(t *testing.T) {
	repo := memory.NewAuditRepository()
	trail := newTestTrail(repo)
	ctx := context.Background()

	require.NoError(t, trail.Record(ctx, "u1", domain.ActionTransfer, "first"))
	abandoned := trail.Entry("u1", domain.ActionTransfer, "rolled back")
	require.NoError(t, trail.Record(ctx, "u1", domain.ActionTransfer, "third"))

	entries, err := repo.ListByActor(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(2), abandoned.Seq)
	assert.Equal(t, uint64(3), entries[1].Seq)
}

func TestTrail_RecordPropagatesStoreFailure(t *testing.T) {
	trail := NewTrail(brokenRepo{}, crypto.NewSigner("k", nil), nil, nil)

	err := trail.Record(context.Background(), "u1", domain.ActionAccountDeactivated, "")

	assert.ErrorIs(t, err, domain.ErrPersistence)
}
