package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

// CheckpointRepository implements secondary.CheckpointRepository with SQLite.
//
// Every lock transition is a single conditional UPDATE ... RETURNING, so two
// workers racing for the same phase can never both see success.
type CheckpointRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewCheckpointRepository creates a new SQLite checkpoint repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewCheckpointRepository(db *sql.DB, logWriter secondary.LogWriter) *CheckpointRepository {
	return &CheckpointRepository{db: db, logWriter: logWriter}
}

const checkpointColumns = `id, plan_id, phase, position, status, completed_count, target_count,
	locked_by_agent, locked_by_conversation, locked_at, lock_epoch, blocked_reason,
	created_at, updated_at, completed_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCheckpoint(ctx context.Context, ex execer, cp *secondary.CheckpointRecord) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO checkpoints (`+checkpointColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.PlanID, cp.Phase, cp.Position, cp.Status, cp.CompletedCount, nullInt(cp.TargetCount),
		nullString(cp.LockedByAgent), nullString(cp.LockedByConversation), toMillis(cp.LockedAt),
		cp.LockEpoch, nullString(cp.BlockedReason),
		cp.CreatedAt.UnixMilli(), cp.UpdatedAt.UnixMilli(), toMillis(cp.CompletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", apperr.ErrDuplicatePhase, cp.Phase)
	}
	if err != nil {
		return wrapErr("create checkpoint", err)
	}
	return nil
}

// Create persists a checkpoint for a phase added after plan creation.
func (r *CheckpointRepository) Create(ctx context.Context, cp *secondary.CheckpointRecord) error {
	if err := insertCheckpoint(ctx, r.db, cp); err != nil {
		return err
	}
	logCreate(ctx, r.logWriter, cp.PlanID, "checkpoint", cp.ID)
	return nil
}

// GetByID retrieves a checkpoint by its ID.
func (r *CheckpointRepository) GetByID(ctx context.Context, id string) (*secondary.CheckpointRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrCheckpointNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get checkpoint", err)
	}
	return cp, nil
}

// GetByPhase retrieves the checkpoint of a plan's phase.
func (r *CheckpointRepository) GetByPhase(ctx context.Context, planID, phase string) (*secondary.CheckpointRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE plan_id = ? AND phase = ?`, planID, phase)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", apperr.ErrCheckpointNotFound, planID, phase)
	}
	if err != nil {
		return nil, wrapErr("get checkpoint", err)
	}
	return cp, nil
}

// List returns a plan's checkpoints in phase order.
func (r *CheckpointRepository) List(ctx context.Context, planID string) ([]*secondary.CheckpointRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE plan_id = ? ORDER BY position, phase`, planID)
	if err != nil {
		return nil, wrapErr("list checkpoints", err)
	}
	defer rows.Close()

	var list []*secondary.CheckpointRecord
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		list = append(list, cp)
	}
	return list, rows.Err()
}

// AcquireLock takes the phase lock if it is free or stale.
func (r *CheckpointRepository) AcquireLock(ctx context.Context, p secondary.AcquireLockParams) (*secondary.CheckpointRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE checkpoints SET
			status = CASE WHEN status IN ('not_started', 'blocked') THEN 'in_progress' ELSE status END,
			locked_by_agent = ?,
			locked_by_conversation = ?,
			locked_at = ?,
			lock_epoch = lock_epoch + 1,
			blocked_reason = NULL,
			updated_at = ?
		WHERE plan_id = ? AND phase = ? AND status != 'complete'
			AND (locked_at IS NULL OR locked_at <= ?)
		RETURNING `+checkpointColumns,
		p.AgentID, p.ConversationID, p.Now.UnixMilli(), p.Now.UnixMilli(),
		p.PlanID, p.Phase, p.StaleBefore.UnixMilli(),
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.diagnoseAcquire(ctx, p)
	}
	if err != nil {
		return nil, wrapErr("acquire lock", err)
	}

	logUpdate(ctx, r.logWriter, cp.PlanID, "checkpoint", cp.ID, "locked_by", "", p.AgentID)
	return cp, nil
}

// diagnoseAcquire explains why the conditional update matched nothing.
func (r *CheckpointRepository) diagnoseAcquire(ctx context.Context, p secondary.AcquireLockParams) error {
	cp, err := r.GetByPhase(ctx, p.PlanID, p.Phase)
	if err != nil {
		return err
	}
	if cp.Status == "complete" {
		return fmt.Errorf("%w: phase %s is already complete", apperr.ErrInvalidState, p.Phase)
	}
	return fmt.Errorf("%w: phase %s is locked by %s since %s",
		apperr.ErrLockHeld, p.Phase, cp.LockedByAgent, cp.LockedAt.Format(time.RFC3339))
}

// ReleaseLock clears the lock and records the outcome, fenced by epoch.
func (r *CheckpointRepository) ReleaseLock(ctx context.Context, p secondary.ReleaseLockParams) (*secondary.CheckpointRecord, error) {
	var completedAt sql.NullInt64
	if p.Status == "complete" {
		completedAt = toMillis(p.Now)
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE checkpoints SET
			status = ?,
			completed_count = MIN(completed_count + ?, COALESCE(target_count, completed_count + ?)),
			blocked_reason = ?,
			locked_by_agent = NULL,
			locked_by_conversation = NULL,
			locked_at = NULL,
			updated_at = ?,
			completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND lock_epoch = ? AND locked_at IS NOT NULL
		RETURNING `+checkpointColumns,
		p.Status, p.Increment, p.Increment, nullString(p.BlockedReason), p.Now.UnixMilli(), completedAt,
		p.CheckpointID, p.Epoch,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.GetByID(ctx, p.CheckpointID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: checkpoint %s epoch %d was superseded", apperr.ErrLockStale, p.CheckpointID, p.Epoch)
	}
	if err != nil {
		return nil, wrapErr("release lock", err)
	}

	logUpdate(ctx, r.logWriter, cp.PlanID, "checkpoint", cp.ID, "status", "in_progress", cp.Status)
	return cp, nil
}

// Heartbeat refreshes locked_at for the current lease holder.
func (r *CheckpointRepository) Heartbeat(ctx context.Context, checkpointID string, epoch int64, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE checkpoints SET locked_at = ?, updated_at = ?
		WHERE id = ? AND lock_epoch = ? AND locked_at IS NOT NULL`,
		now.UnixMilli(), now.UnixMilli(), checkpointID, epoch,
	)
	if err != nil {
		return wrapErr("heartbeat lock", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: checkpoint %s epoch %d", apperr.ErrLockStale, checkpointID, epoch)
	}
	return nil
}

// SetTargetCount replaces the target. It refuses a target below the
// completed count.
func (r *CheckpointRepository) SetTargetCount(ctx context.Context, checkpointID string, target *int, now time.Time) error {
	t := nullInt(target)
	result, err := r.db.ExecContext(ctx,
		`UPDATE checkpoints SET target_count = ?, updated_at = ?
		WHERE id = ? AND (? IS NULL OR completed_count <= ?)`,
		t, now.UnixMilli(), checkpointID, t, t,
	)
	if err != nil {
		return wrapErr("set target count", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		cp, err := r.GetByID(ctx, checkpointID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: target %d is below completed count %d", apperr.ErrInvalidArgument, *target, cp.CompletedCount)
	}

	newValue := ""
	if target != nil {
		newValue = strconv.Itoa(*target)
	}
	logUpdate(ctx, r.logWriter, "", "checkpoint", checkpointID, "target_count", "", newValue)
	return nil
}

func scanCheckpoint(s scanner) (*secondary.CheckpointRecord, error) {
	var (
		target        sql.NullInt64
		lockedBy      sql.NullString
		lockedByConv  sql.NullString
		lockedAt      sql.NullInt64
		blockedReason sql.NullString
		createdAt     int64
		updatedAt     int64
		completedAt   sql.NullInt64
	)

	cp := &secondary.CheckpointRecord{}
	err := s.Scan(&cp.ID, &cp.PlanID, &cp.Phase, &cp.Position, &cp.Status, &cp.CompletedCount, &target,
		&lockedBy, &lockedByConv, &lockedAt, &cp.LockEpoch, &blockedReason,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	cp.TargetCount = intPtr(target)
	cp.LockedByAgent = lockedBy.String
	cp.LockedByConversation = lockedByConv.String
	cp.LockedAt = fromMillis(lockedAt)
	cp.BlockedReason = blockedReason.String
	cp.CreatedAt = time.UnixMilli(createdAt).UTC()
	cp.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	cp.CompletedAt = fromMillis(completedAt)
	return cp, nil
}

var _ secondary.CheckpointRepository = (*CheckpointRepository)(nil)
