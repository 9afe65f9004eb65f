package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/quill/internal/ports/secondary"
)

// AuditLogRepository implements secondary.AuditLogRepository with SQLite.
type AuditLogRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditLogRepository creates a new SQLite audit log repository.
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db, now: time.Now}
}

// Create persists a new audit log entry. A zero CreatedAt is stamped now.
func (r *AuditLogRepository) Create(ctx context.Context, record *secondary.AuditLogRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (plan_id, actor_id, entity_type, entity_id, action, field_name, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.PlanID,
		record.ActorID,
		record.EntityType,
		record.EntityID,
		record.Action,
		record.FieldName,
		record.OldValue,
		record.NewValue,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return wrapErr("create audit log entry", err)
	}

	record.ID, _ = result.LastInsertId()
	return nil
}

// List retrieves log entries matching the given filters.
func (r *AuditLogRepository) List(ctx context.Context, filters secondary.AuditLogFilters) ([]*secondary.AuditLogRecord, error) {
	query := `SELECT id, plan_id, actor_id, entity_type, entity_id, action, field_name, old_value, new_value, created_at
		FROM audit_log WHERE 1=1`
	args := []any{}

	if filters.PlanID != "" {
		query += " AND plan_id = ?"
		args = append(args, filters.PlanID)
	}

	if filters.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, filters.EntityType)
	}

	if filters.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, filters.EntityID)
	}

	if filters.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, filters.ActorID)
	}

	if filters.Ascending {
		query += " ORDER BY id ASC"
	} else {
		query += " ORDER BY id DESC"
	}

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list audit log", err)
	}
	defer rows.Close()

	var logs []*secondary.AuditLogRecord
	for rows.Next() {
		var createdAt int64
		record := &secondary.AuditLogRecord{}
		err := rows.Scan(&record.ID,
			&record.PlanID,
			&record.ActorID,
			&record.EntityType,
			&record.EntityID,
			&record.Action,
			&record.FieldName,
			&record.OldValue,
			&record.NewValue,
			&createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		logs = append(logs, record)
	}

	return logs, rows.Err()
}

// PruneOlderThan deletes entries created before cutoff.
func (r *AuditLogRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_log WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, wrapErr("prune audit log", err)
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}

var _ secondary.AuditLogRepository = (*AuditLogRepository)(nil)
