package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit operations emitted by the override lifecycle.
const (
	AuditGrantCreated    = "grant_created"
	AuditDenyCreated     = "deny_created"
	AuditOverrideDeleted = "override_deleted"
)

// AuditEvent represents a record stored in audit_logs.
type AuditEvent struct {
	Actor          string
	PrincipalID    int64
	PermissionCode string
	Operation      string
	Reason         string
	At             time.Time
}

// AuditRecorder is implemented by audit sinks. Delivery is
// fire-and-forget from the caller's perspective: a failed Record never
// fails the mutation that produced the event.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the audit event.
func (l *AuditLogger) Record(ctx context.Context, event AuditEvent) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if event.Actor == "" || event.Operation == "" || event.PermissionCode == "" {
		return errors.New("audit event requires actor/operation/permission_code")
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor, principal_id, permission_code, operation, reason, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.Actor, event.PrincipalID, event.PermissionCode, event.Operation, event.Reason, at)
	return err
}
