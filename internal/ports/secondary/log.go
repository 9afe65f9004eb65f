package secondary

import (
	"context"
	"time"
)

// LogWriter defines the interface for writing audit log entries.
// Implementations extract the actor from context.
type LogWriter interface {
	// LogCreate logs a create operation for an entity.
	LogCreate(ctx context.Context, planID, entityType, entityID string) error

	// LogUpdate logs an update operation for an entity field.
	// fieldName, oldValue, newValue describe what changed.
	LogUpdate(ctx context.Context, planID, entityType, entityID, fieldName, oldValue, newValue string) error

	// LogDelete logs a delete operation for an entity.
	LogDelete(ctx context.Context, planID, entityType, entityID string) error
}

// AuditLogRecord represents one audit log row.
type AuditLogRecord struct {
	ID         int64
	PlanID     string
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	FieldName  string
	OldValue   string
	NewValue   string
	CreatedAt  time.Time
}

// AuditLogFilters contains filter options for querying the audit log.
type AuditLogFilters struct {
	PlanID     string
	EntityType string
	EntityID   string
	ActorID    string
	// Ascending returns oldest first.
	Ascending bool
	Limit     int
}

// AuditLogRepository defines the secondary port for audit log persistence.
type AuditLogRepository interface {
	Create(ctx context.Context, record *AuditLogRecord) error
	// List returns matching rows, newest first.
	List(ctx context.Context, filters AuditLogFilters) ([]*AuditLogRecord, error)
	// PruneOlderThan deletes rows older than cutoff and returns how many.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
