package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

// PlanRepository implements secondary.PlanRepository with SQLite.
type PlanRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewPlanRepository creates a new SQLite plan repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewPlanRepository(db *sql.DB, logWriter secondary.LogWriter) *PlanRepository {
	return &PlanRepository{db: db, logWriter: logWriter}
}

const planColumns = `id, project_ref, primary_branch, title, template, status, source_plan_id,
	created_at, updated_at, completed_at`

// Create persists a new plan together with its checkpoints.
func (r *PlanRepository) Create(ctx context.Context, plan *secondary.PlanRecord, checkpoints []*secondary.CheckpointRecord) error {
	err := withTx(ctx, r.db, "create plan", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.ID, plan.ProjectRef, plan.PrimaryBranch, plan.Title, plan.Template, plan.Status,
			nullString(plan.SourcePlanID), plan.CreatedAt.UnixMilli(), plan.UpdatedAt.UnixMilli(), toMillis(plan.CompletedAt),
		)
		if err != nil {
			return wrapErr("create plan", err)
		}

		for _, cp := range checkpoints {
			if err := insertCheckpoint(ctx, tx, cp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logCreate(ctx, r.logWriter, plan.ID, "plan", plan.ID)
	for _, cp := range checkpoints {
		logCreate(ctx, r.logWriter, plan.ID, "checkpoint", cp.ID)
	}
	return nil
}

// GetByID retrieves a plan by its ID.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*secondary.PlanRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	record, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get plan", err)
	}
	return record, nil
}

// List retrieves plans matching the given filters.
func (r *PlanRepository) List(ctx context.Context, filters secondary.PlanFilters) ([]*secondary.PlanRecord, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE 1=1`
	args := []any{}

	if filters.ProjectRef != "" {
		query += " AND project_ref = ?"
		args = append(args, filters.ProjectRef)
	}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list plans", err)
	}
	defer rows.Close()

	var plans []*secondary.PlanRecord
	for rows.Next() {
		record, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, record)
	}

	return plans, rows.Err()
}

// UpdateStatus moves a plan from one status to another.
func (r *PlanRepository) UpdateStatus(ctx context.Context, id, from, to string, now time.Time) error {
	var completedAt sql.NullInt64
	if to == "completed" {
		completedAt = toMillis(now)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?`,
		to, now.UnixMilli(), completedAt, id, from,
	)
	if err != nil {
		return wrapErr("update plan status", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: plan %s is no longer %s", apperr.ErrPersistenceConflict, id, from)
	}

	logUpdate(ctx, r.logWriter, id, "plan", id, "status", from, to)
	return nil
}

// Delete removes a plan from persistence. Owned rows cascade.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		return wrapErr("delete plan", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrPlanNotFound, id)
	}

	logDelete(ctx, r.logWriter, id, "plan", id)
	return nil
}

func scanPlan(s scanner) (*secondary.PlanRecord, error) {
	var (
		sourcePlanID sql.NullString
		createdAt    int64
		updatedAt    int64
		completedAt  sql.NullInt64
	)

	record := &secondary.PlanRecord{}
	err := s.Scan(&record.ID, &record.ProjectRef, &record.PrimaryBranch, &record.Title, &record.Template,
		&record.Status, &sourcePlanID, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	record.SourcePlanID = sourcePlanID.String
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	record.CompletedAt = fromMillis(completedAt)
	return record, nil
}

var _ secondary.PlanRepository = (*PlanRepository)(nil)
