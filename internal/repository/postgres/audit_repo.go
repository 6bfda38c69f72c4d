package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"smartbank/internal/domain"
)

const auditColumns = `id, seq, actor_id, action, details, timestamp, signature`

type AuditRepository struct {
	db queryer
}

func NewAuditRepository(db queryer) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	return insertAudit(ctx, r.db, entry)
}

func (r *AuditRepository) ListByActor(ctx context.Context, actorID string) ([]*domain.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE actor_id = $1 ORDER BY timestamp ASC, seq ASC`,
		actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching audit entries: %w", err)
	}
	defer closeRows(rows)

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		var (
			entry  domain.AuditLogEntry
			action string
			detail sql.NullString
			seq    int64
		)
		if err := rows.Scan(&entry.ID, &seq, &entry.ActorID, &action, &detail, &entry.Timestamp, &entry.Signature); err != nil {
			return nil, fmt.Errorf("error scanning audit entry: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.Action = domain.AuditAction(action)
		entry.Detail = detail.String
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over audit entries: %w", err)
	}

	return entries, nil
}

func insertAudit(ctx context.Context, db queryer, entry *domain.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, int64(entry.Seq), entry.ActorID, string(entry.Action),
		nullString(entry.Detail), entry.Timestamp, entry.Signature,
	)
	return mapError(err, "audit entry "+entry.ID)
}
