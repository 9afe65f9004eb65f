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

// BacklogRepository implements secondary.BacklogRepository with SQLite.
type BacklogRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewBacklogRepository creates a new SQLite backlog repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewBacklogRepository(db *sql.DB, logWriter secondary.LogWriter) *BacklogRepository {
	return &BacklogRepository{db: db, logWriter: logWriter}
}

const backlogColumns = `seq, id, plan_id, backlog_id, phase, target_slot_id, description, inputs, outputs,
	status, retryable, failure_reason, attempt_count,
	conversation_id, conversation_plan_id, task_id, provider_id, model_id,
	created_at, updated_at, in_progress_at, completed_at, failed_at`

// Items enqueued without a phase are eligible for every phase.
const phaseClause = " AND (phase = ? OR phase = '')"

// Create enqueues a new pending item.
func (r *BacklogRepository) Create(ctx context.Context, item *secondary.BacklogItemRecord) error {
	inputs, err := encodeStrings(item.Inputs)
	if err != nil {
		return err
	}
	outputs, err := encodeStrings(item.Outputs)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO backlog_items (id, plan_id, backlog_id, phase, target_slot_id, description, inputs, outputs,
			status, retryable, attempt_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		item.ID, item.PlanID, item.BacklogID, item.Phase, nullString(item.TargetSlotID), item.Description,
		inputs, outputs, item.Status, item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", apperr.ErrDuplicateBacklogID, item.BacklogID)
	}
	if err != nil {
		return wrapErr("create backlog item", err)
	}

	item.Seq, _ = result.LastInsertId()
	logCreate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID)
	return nil
}

// Get retrieves an item by its plan-scoped backlog id.
func (r *BacklogRepository) Get(ctx context.Context, planID, backlogID string) (*secondary.BacklogItemRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+backlogColumns+` FROM backlog_items WHERE plan_id = ? AND backlog_id = ?`, planID, backlogID)
	item, err := scanBacklogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrBacklogItemNotFound, backlogID)
	}
	if err != nil {
		return nil, wrapErr("get backlog item", err)
	}
	return item, nil
}

// List retrieves items matching the filters in FIFO order.
func (r *BacklogRepository) List(ctx context.Context, filters secondary.BacklogFilters) ([]*secondary.BacklogItemRecord, error) {
	query := `SELECT ` + backlogColumns + ` FROM backlog_items WHERE plan_id = ?`
	args := []any{filters.PlanID}

	if filters.Phase != "" {
		query += phaseClause
		args = append(args, filters.Phase)
	}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list backlog", err)
	}
	defer rows.Close()

	var items []*secondary.BacklogItemRecord
	for rows.Next() {
		item, err := scanBacklogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backlog item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimNext flips the oldest pending item to in_progress. When nothing is
// pending and IncludeRetryable is set, the oldest retryable failed item is
// requeued and claimed in the same transaction.
func (r *BacklogRepository) ClaimNext(ctx context.Context, p secondary.ClaimParams) (*secondary.BacklogItemRecord, error) {
	var (
		item      *secondary.BacklogItemRecord
		requeued  bool
		now       = p.Now.UnixMilli()
		selectArg = []any{p.PlanID}
		selectSQL = `SELECT seq FROM backlog_items WHERE plan_id = ? AND status = ?`
	)
	if p.Phase != "" {
		selectSQL += phaseClause
		selectArg = append(selectArg, p.Phase)
	}

	claim := func(tx *sql.Tx, from, extra string) (*secondary.BacklogItemRecord, error) {
		args := []any{
			nullString(p.Execution.ConversationID), nullString(p.Execution.ConversationPlanID),
			nullString(p.Execution.TaskID), nullString(p.Execution.ProviderID), nullString(p.Execution.ModelID),
			now, now,
		}
		args = append(args, from)
		args = append(args, selectArg[:1]...)
		args = append(args, from)
		args = append(args, selectArg[1:]...)

		row := tx.QueryRowContext(ctx,
			`UPDATE backlog_items SET
				status = 'in_progress',
				attempt_count = attempt_count + 1,
				conversation_id = COALESCE(?, conversation_id),
				conversation_plan_id = COALESCE(?, conversation_plan_id),
				task_id = COALESCE(?, task_id),
				provider_id = COALESCE(?, provider_id),
				model_id = COALESCE(?, model_id),
				in_progress_at = ?,
				updated_at = ?,
				failure_reason = NULL,
				retryable = 0
			WHERE status = ? AND seq = (`+selectSQL+extra+` ORDER BY seq LIMIT 1)
			RETURNING `+backlogColumns,
			args...,
		)
		return scanBacklogItem(row)
	}

	err := withTx(ctx, r.db, "claim backlog item", func(tx *sql.Tx) error {
		var err error
		item, err = claim(tx, "pending", "")
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return wrapErr("claim backlog item", err)
		}
		if !p.IncludeRetryable {
			return apperr.ErrNoWorkAvailable
		}

		item, err = claim(tx, "failed", " AND retryable = 1")
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNoWorkAvailable
		}
		if err != nil {
			return wrapErr("claim retryable backlog item", err)
		}
		requeued = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if requeued {
		logUpdate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID, "status", "failed", "pending")
	}
	logUpdate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID, "status", "pending", "in_progress")
	return item, nil
}

// Transition applies a status change conditioned on the current status.
func (r *BacklogRepository) Transition(ctx context.Context, p secondary.TransitionParams) (*secondary.BacklogItemRecord, error) {
	now := p.Now.UnixMilli()
	query := `UPDATE backlog_items SET status = ?, updated_at = ?`
	args := []any{p.To, now}

	switch p.To {
	case "complete":
		outputs, err := encodeStrings(p.Outputs)
		if err != nil {
			return nil, err
		}
		query += ", outputs = ?, completed_at = ?, failure_reason = NULL, retryable = 0"
		args = append(args, outputs, now)
	case "failed":
		query += ", failure_reason = ?, retryable = ?, failed_at = ?"
		args = append(args, nullString(p.FailureReason), boolToInt(p.Retryable), now)
	case "pending":
		query += ", failure_reason = NULL, retryable = 0"
	case "in_progress":
		query += ", in_progress_at = ?"
		args = append(args, now)
	}

	query += " WHERE plan_id = ? AND backlog_id = ? AND status = ? RETURNING " + backlogColumns
	args = append(args, p.PlanID, p.BacklogID, p.From)

	item, err := scanBacklogItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		current, err := r.Get(ctx, p.PlanID, p.BacklogID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: backlog item %s is %s, not %s",
			apperr.ErrInvalidTransition, p.BacklogID, current.Status, p.From)
	}
	if err != nil {
		return nil, wrapErr("transition backlog item", err)
	}

	logUpdate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID, "status", p.From, p.To)
	return item, nil
}

// Resume re-attaches an item to a new execution context. The attempt budget
// restarts at one. Linkage fields left empty keep their prior value.
func (r *BacklogRepository) Resume(ctx context.Context, p secondary.ResumeParams) (*secondary.BacklogItemRecord, error) {
	now := p.Now.UnixMilli()
	row := r.db.QueryRowContext(ctx,
		`UPDATE backlog_items SET
			status = 'in_progress',
			attempt_count = 1,
			conversation_id = COALESCE(?, conversation_id),
			conversation_plan_id = COALESCE(?, conversation_plan_id),
			task_id = COALESCE(?, task_id),
			provider_id = COALESCE(?, provider_id),
			model_id = COALESCE(?, model_id),
			failure_reason = NULL,
			retryable = 0,
			in_progress_at = ?,
			updated_at = ?
		WHERE plan_id = ? AND backlog_id = ? AND status = ?
			AND COALESCE(conversation_id, '') != '' AND COALESCE(task_id, '') != ''
		RETURNING `+backlogColumns,
		nullString(p.Execution.ConversationID), nullString(p.Execution.ConversationPlanID),
		nullString(p.Execution.TaskID), nullString(p.Execution.ProviderID), nullString(p.Execution.ModelID),
		now, now, p.PlanID, p.BacklogID, p.From,
	)
	item, err := scanBacklogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, err := r.Get(ctx, p.PlanID, p.BacklogID)
		if err != nil {
			return nil, err
		}
		if current.Execution.ConversationID == "" || current.Execution.TaskID == "" {
			return nil, fmt.Errorf("%w: backlog item %s", apperr.ErrMissingResumeMetadata, p.BacklogID)
		}
		return nil, fmt.Errorf("%w: backlog item %s is %s, not %s",
			apperr.ErrInvalidTransition, p.BacklogID, current.Status, p.From)
	}
	if err != nil {
		return nil, wrapErr("resume backlog item", err)
	}

	if p.From == "failed" {
		logUpdate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID, "status", "failed", "pending")
		logUpdate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID, "status", "pending", "in_progress")
	}
	logUpdate(ctx, r.logWriter, item.PlanID, "backlog_item", item.BacklogID, "conversation_id", "", item.Execution.ConversationID)
	return item, nil
}

// CountByStatus tallies items by status.
func (r *BacklogRepository) CountByStatus(ctx context.Context, planID, phase string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM backlog_items WHERE plan_id = ?`
	args := []any{planID}
	if phase != "" {
		query += phaseClause
		args = append(args, phase)
	}
	query += " GROUP BY status"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("count backlog", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan backlog count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountRetryable counts failed items that ClaimNext may requeue.
func (r *BacklogRepository) CountRetryable(ctx context.Context, planID, phase string) (int, error) {
	query := `SELECT COUNT(*) FROM backlog_items WHERE plan_id = ? AND status = 'failed' AND retryable = 1`
	args := []any{planID}
	if phase != "" {
		query += phaseClause
		args = append(args, phase)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrapErr("count retryable backlog", err)
	}
	return n, nil
}

func scanBacklogItem(s scanner) (*secondary.BacklogItemRecord, error) {
	var (
		targetSlot    sql.NullString
		inputs        string
		outputs       string
		retryable     int
		failureReason sql.NullString
		convID        sql.NullString
		convPlanID    sql.NullString
		taskID        sql.NullString
		providerID    sql.NullString
		modelID       sql.NullString
		createdAt     int64
		updatedAt     int64
		inProgressAt  sql.NullInt64
		completedAt   sql.NullInt64
		failedAt      sql.NullInt64
	)

	item := &secondary.BacklogItemRecord{}
	err := s.Scan(&item.Seq, &item.ID, &item.PlanID, &item.BacklogID, &item.Phase, &targetSlot,
		&item.Description, &inputs, &outputs, &item.Status, &retryable, &failureReason, &item.AttemptCount,
		&convID, &convPlanID, &taskID, &providerID, &modelID,
		&createdAt, &updatedAt, &inProgressAt, &completedAt, &failedAt)
	if err != nil {
		return nil, err
	}

	if item.Inputs, err = decodeStrings(inputs); err != nil {
		return nil, err
	}
	if item.Outputs, err = decodeStrings(outputs); err != nil {
		return nil, err
	}

	item.TargetSlotID = targetSlot.String
	item.Retryable = retryable != 0
	item.FailureReason = failureReason.String
	item.Execution = secondary.ExecutionContext{
		ConversationID:     convID.String,
		ConversationPlanID: convPlanID.String,
		TaskID:             taskID.String,
		ProviderID:         providerID.String,
		ModelID:            modelID.String,
	}
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	item.InProgressAt = fromMillis(inProgressAt)
	item.CompletedAt = fromMillis(completedAt)
	item.FailedAt = fromMillis(failedAt)
	return item, nil
}

var _ secondary.BacklogRepository = (*BacklogRepository)(nil)
