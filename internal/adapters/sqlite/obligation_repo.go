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

// ObligationRepository implements secondary.ObligationRepository with SQLite.
type ObligationRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewObligationRepository creates a new SQLite obligation repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewObligationRepository(db *sql.DB, logWriter secondary.LogWriter) *ObligationRepository {
	return &ObligationRepository{db: db, logWriter: logWriter}
}

const obligationColumns = `id, plan_id, persona_id, slug, title, source_phase, source_backlog_id, branch_slug,
	status, resolved_by, resolved_at, voice_drift, created_at, updated_at`

// Create raises a new open obligation.
func (r *ObligationRepository) Create(ctx context.Context, o *secondary.ObligationRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO obligations (`+obligationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PlanID, o.PersonaID, o.Slug, o.Title, o.SourcePhase, nullString(o.SourceBacklogID),
		nullString(o.BranchSlug), o.Status, nullString(o.ResolvedBy), toMillis(o.ResolvedAt),
		boolToInt(o.VoiceDrift), o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", apperr.ErrDuplicateObligation, o.PersonaID, o.Slug)
	}
	if err != nil {
		return wrapErr("create obligation", err)
	}

	logCreate(ctx, r.logWriter, o.PlanID, "obligation", o.ID)
	return nil
}

// GetByID retrieves an obligation by its ID.
func (r *ObligationRepository) GetByID(ctx context.Context, id string) (*secondary.ObligationRecord, error) {
	o, err := scanObligation(r.db.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrObligationNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get obligation", err)
	}
	return o, nil
}

// List retrieves obligations matching the given filters, oldest first.
func (r *ObligationRepository) List(ctx context.Context, filters secondary.ObligationFilters) ([]*secondary.ObligationRecord, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE plan_id = ?`
	args := []any{filters.PlanID}

	if filters.OpenOnly {
		query += " AND status = 'open'"
	}
	if filters.Phase != "" {
		query += " AND source_phase = ?"
		args = append(args, filters.Phase)
	}
	if filters.PersonaID != "" {
		query += " AND persona_id = ?"
		args = append(args, filters.PersonaID)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list obligations", err)
	}
	defer rows.Close()

	var list []*secondary.ObligationRecord
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// CountOpen counts open obligations, optionally raised in one phase.
func (r *ObligationRepository) CountOpen(ctx context.Context, planID, phase string) (int, error) {
	query := `SELECT COUNT(*) FROM obligations WHERE plan_id = ? AND status = 'open'`
	args := []any{planID}
	if phase != "" {
		query += " AND source_phase = ?"
		args = append(args, phase)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrapErr("count open obligations", err)
	}
	return n, nil
}

// Close moves an open obligation to a terminal status and records the note.
func (r *ObligationRepository) Close(ctx context.Context, p secondary.CloseObligationParams) (*secondary.ObligationRecord, error) {
	var o *secondary.ObligationRecord
	err := withTx(ctx, r.db, "close obligation", func(tx *sql.Tx) error {
		var err error
		o, err = scanObligation(tx.QueryRowContext(ctx,
			`UPDATE obligations SET status = ?, resolved_by = ?, resolved_at = ?,
				voice_drift = CASE WHEN ? THEN 1 ELSE voice_drift END, updated_at = ?
			WHERE id = ? AND status = 'open'
			RETURNING `+obligationColumns,
			p.Status, p.Actor, p.Now.UnixMilli(), p.VoiceDrift, p.Now.UnixMilli(), p.ID,
		))
		if errors.Is(err, sql.ErrNoRows) {
			var status string
			err := tx.QueryRowContext(ctx, "SELECT status FROM obligations WHERE id = ?", p.ID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", apperr.ErrObligationNotFound, p.ID)
			}
			if err != nil {
				return wrapErr("get obligation", err)
			}
			return fmt.Errorf("%w: obligation %s is %s", apperr.ErrInvalidState, p.ID, status)
		}
		if err != nil {
			return wrapErr("close obligation", err)
		}

		return insertObligationNote(ctx, tx, &secondary.ObligationNoteRecord{
			ObligationID: p.ID,
			Actor:        p.Actor,
			Action:       p.Action,
			Notes:        p.Notes,
			CreatedAt:    p.Now,
		})
	})
	if err != nil {
		return nil, err
	}

	logUpdate(ctx, r.logWriter, o.PlanID, "obligation", o.ID, "status", "open", o.Status)
	return o, nil
}

// AppendNote adds a history entry without changing status.
func (r *ObligationRepository) AppendNote(ctx context.Context, note *secondary.ObligationNoteRecord) error {
	if _, err := r.GetByID(ctx, note.ObligationID); err != nil {
		return err
	}
	return insertObligationNote(ctx, r.db, note)
}

// Notes returns an obligation's history, oldest first.
func (r *ObligationRepository) Notes(ctx context.Context, obligationID string) ([]*secondary.ObligationNoteRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT obligation_id, actor, action, notes, created_at FROM obligation_notes WHERE obligation_id = ? ORDER BY id`,
		obligationID)
	if err != nil {
		return nil, wrapErr("list obligation notes", err)
	}
	defer rows.Close()

	var notes []*secondary.ObligationNoteRecord
	for rows.Next() {
		var createdAt int64
		n := &secondary.ObligationNoteRecord{}
		if err := rows.Scan(&n.ObligationID, &n.Actor, &n.Action, &n.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan obligation note: %w", err)
		}
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func insertObligationNote(ctx context.Context, ex execer, n *secondary.ObligationNoteRecord) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO obligation_notes (obligation_id, actor, action, notes, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ObligationID, n.Actor, n.Action, n.Notes, n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return wrapErr("append obligation note", err)
	}
	return nil
}

func scanObligation(s scanner) (*secondary.ObligationRecord, error) {
	var (
		sourceBacklog sql.NullString
		branchSlug    sql.NullString
		resolvedBy    sql.NullString
		resolvedAt    sql.NullInt64
		voiceDrift    int
		createdAt     int64
		updatedAt     int64
	)
	o := &secondary.ObligationRecord{}
	err := s.Scan(&o.ID, &o.PlanID, &o.PersonaID, &o.Slug, &o.Title, &o.SourcePhase, &sourceBacklog, &branchSlug,
		&o.Status, &resolvedBy, &resolvedAt, &voiceDrift, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.SourceBacklogID = sourceBacklog.String
	o.BranchSlug = branchSlug.String
	o.ResolvedBy = resolvedBy.String
	o.ResolvedAt = fromMillis(resolvedAt)
	o.VoiceDrift = voiceDrift != 0
	o.CreatedAt = time.UnixMilli(createdAt).UTC()
	o.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return o, nil
}

var _ secondary.ObligationRepository = (*ObligationRepository)(nil)
