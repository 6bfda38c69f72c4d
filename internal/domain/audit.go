package domain

import "time"

type AuditAction string

const (
	ActionTransfer           AuditAction = "TRANSFER"
	ActionAccountDeactivated AuditAction = "ACCOUNT_DEACTIVATED"
	ActionFlaggedViewed      AuditAction = "FLAGGED_TRANSACTIONS_VIEWED"
)

// AuditLogEntry is write-once. Seq is taken when the entry is built: it is
// unique and increasing in build order within one process, even when
// timestamps collide. It is not commit order, and an entry whose write fails
// leaves a gap.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	Seq       uint64      `json:"seq"`
	ActorID   string      `json:"actor_id"`
	Action    AuditAction `json:"action"`
	Detail    string      `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Signature string      `json:"signature"`
}
