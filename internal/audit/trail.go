package audit

import (
	"context"
	"fmt"
	"log/slog"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"smartbank/pkg/crypto"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Trail builds signed, sequenced audit entries and appends standalone ones.
// Entries that belong to a transfer are built with Entry and written by the
// ledger inside its unit of work.
type Trail struct {
	repo   repository.AuditRepository
	signer *crypto.Signer
	now    func() time.Time
	seq    atomic.Uint64
	logger *slog.Logger
}

func NewTrail(repo repository.AuditRepository, signer *crypto.Signer, now func() time.Time, logger *slog.Logger) *Trail {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	return &Trail{
		repo:   repo,
		signer: signer,
		now:    now,
		logger: logger,
	}
}

// Entry builds and signs an entry, taking the next sequence number.
func (t *Trail) Entry(actorID string, action domain.AuditAction, detail string) *domain.AuditLogEntry {
	entry := &domain.AuditLogEntry{
		ID:        uuid.NewString(),
		Seq:       t.seq.Add(1),
		ActorID:   actorID,
		Action:    action,
		Detail:    detail,
		Timestamp: t.now().UTC(),
	}
	entry.Signature = t.signer.SignFields(signedFields(entry)...)
	return entry
}

// Record appends a standalone entry. A failed write is returned, never dropped.
func (t *Trail) Record(ctx context.Context, actorID string, action domain.AuditAction, detail string) error {
	entry := t.Entry(actorID, action, detail)

	if err := t.repo.Append(ctx, entry); err != nil {
		t.logger.ErrorContext(ctx, "Failed to write audit entry",
			slog.String("actor_id", actorID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: audit entry: %w", domain.ErrPersistence, err)
	}

	return nil
}

func (t *Trail) Verify(entry *domain.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}
	if err := t.signer.VerifyFields(entry.Signature, signedFields(entry)...); err != nil {
		return fmt.Errorf("audit entry %s: %w", entry.ID, err)
	}
	return nil
}

func signedFields(entry *domain.AuditLogEntry) []string {
	return []string{
		entry.ID,
		strconv.FormatUint(entry.Seq, 10),
		entry.ActorID,
		string(entry.Action),
		entry.Detail,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
