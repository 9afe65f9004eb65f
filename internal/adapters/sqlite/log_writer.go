package sqlite

import (
	"context"

	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/ports/secondary"
)

// LogWriterAdapter implements secondary.LogWriter on top of the audit log.
type LogWriterAdapter struct {
	logRepo secondary.AuditLogRepository
}

// NewLogWriterAdapter creates a new LogWriterAdapter.
func NewLogWriterAdapter(logRepo secondary.AuditLogRepository) *LogWriterAdapter {
	return &LogWriterAdapter{logRepo: logRepo}
}

// LogCreate logs a create operation for an entity.
func (w *LogWriterAdapter) LogCreate(ctx context.Context, planID, entityType, entityID string) error {
	return w.writeLog(ctx, planID, entityType, entityID, "create", "", "", "")
}

// LogUpdate logs an update operation for an entity field.
func (w *LogWriterAdapter) LogUpdate(ctx context.Context, planID, entityType, entityID, fieldName, oldValue, newValue string) error {
	return w.writeLog(ctx, planID, entityType, entityID, "update", fieldName, oldValue, newValue)
}

// LogDelete logs a delete operation for an entity.
func (w *LogWriterAdapter) LogDelete(ctx context.Context, planID, entityType, entityID string) error {
	return w.writeLog(ctx, planID, entityType, entityID, "delete", "", "", "")
}

func (w *LogWriterAdapter) writeLog(ctx context.Context, planID, entityType, entityID, action, fieldName, oldValue, newValue string) error {
	return w.logRepo.Create(ctx, &secondary.AuditLogRecord{
		PlanID:     planID,
		ActorID:    ctxutil.ActorFromContext(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		FieldName:  fieldName,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
}

// logCreate, logUpdate and logDelete write best-effort audit entries;
// a nil writer disables auditing.
func logCreate(ctx context.Context, w secondary.LogWriter, planID, entityType, entityID string) {
	if w != nil {
		_ = w.LogCreate(ctx, planID, entityType, entityID)
	}
}

func logUpdate(ctx context.Context, w secondary.LogWriter, planID, entityType, entityID, field, oldValue, newValue string) {
	if w != nil {
		_ = w.LogUpdate(ctx, planID, entityType, entityID, field, oldValue, newValue)
	}
}

func logDelete(ctx context.Context, w secondary.LogWriter, planID, entityType, entityID string) {
	if w != nil {
		_ = w.LogDelete(ctx, planID, entityType, entityID)
	}
}

var _ secondary.LogWriter = (*LogWriterAdapter)(nil)
