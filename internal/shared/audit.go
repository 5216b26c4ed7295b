package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// AuditLog is one row of audit_logs. Actor defaults to the actor on the
// context and At to the current time.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID int64
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends to audit_logs. Entries are written after the business
// transaction commits, so a failed write never rolls back a dispatch.
type AuditLogger struct {
	db  Querier
	now func() time.Time
}

// NewAuditLogger writes through db, normally the pgx pool.
func NewAuditLogger(db Querier) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == 0 {
		return fmt.Errorf("audit log %q on %q: action, entity and entity id are required", log.Action, log.Entity)
	}
	if log.Actor == "" {
		log.Actor = ActorFromContext(ctx)
	}
	if log.At.IsZero() {
		log.At = l.now()
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit log %s: encode meta: %w", log.Action, err)
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		log.Actor, log.Action, log.Entity, strconv.FormatInt(log.EntityID, 10), metaJSON, log.At.UTC())
	return err
}

type actorKey struct{}

// ContextWithActor stores the acting principal (request id or caller header) on ctx.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting principal, or "system".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
