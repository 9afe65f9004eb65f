package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

// TranscriptRepository implements secondary.TranscriptRepository with SQLite.
// Rows are never updated; a trigger rejects UPDATE statements.
type TranscriptRepository struct {
	db *sql.DB
}

// NewTranscriptRepository creates a new SQLite transcript repository.
func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

const transcriptColumns = `id, plan_id, phase, target_node_id, attempt, agent_id, conversation_id,
	request_payload, response_payload, prompt_tokens, completion_tokens, latency_ms,
	validation_status, validation_details, is_retry, created_at`

// Append inserts an entry whose attempt exceeds every recorded attempt for
// the same (plan, phase, target).
func (r *TranscriptRepository) Append(ctx context.Context, e *secondary.TranscriptEntryRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO transcript_entries (`+transcriptColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM transcript_entries
			WHERE plan_id = ? AND phase = ? AND target_node_id = ? AND attempt >= ?
		)`,
		e.ID, e.PlanID, e.Phase, e.TargetNodeID, e.Attempt, e.AgentID, e.ConversationID,
		e.RequestPayload, e.ResponsePayload, e.PromptTokens, e.CompletionTokens, e.LatencyMs,
		e.ValidationStatus, e.ValidationDetails, boolToInt(e.IsRetry), e.CreatedAt.UnixMilli(),
		e.PlanID, e.Phase, e.TargetNodeID, e.Attempt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: attempt %d for %s/%s", apperr.ErrAttemptOutOfOrder, e.Attempt, e.Phase, e.TargetNodeID)
	}
	if err != nil {
		return wrapErr("append transcript entry", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: attempt %d for %s/%s", apperr.ErrAttemptOutOfOrder, e.Attempt, e.Phase, e.TargetNodeID)
	}
	return nil
}

// Entries streams matching entries in recorded order. Each range runs a
// fresh query, so the sequence can be iterated more than once.
func (r *TranscriptRepository) Entries(ctx context.Context, filters secondary.TranscriptFilters) iter.Seq2[*secondary.TranscriptEntryRecord, error] {
	return func(yield func(*secondary.TranscriptEntryRecord, error) bool) {
		query := `SELECT ` + transcriptColumns + ` FROM transcript_entries WHERE plan_id = ?`
		args := []any{filters.PlanID}

		if filters.Phase != "" {
			query += " AND phase = ?"
			args = append(args, filters.Phase)
		}
		if filters.TargetNodeID != nil {
			query += " AND target_node_id = ?"
			args = append(args, *filters.TargetNodeID)
		}
		query += " ORDER BY rowid"

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, wrapErr("query transcript", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanTranscriptEntry(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan transcript entry: %w", err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, wrapErr("read transcript", err))
		}
	}
}

// MaxAttempt returns the highest recorded attempt, 0 if none.
func (r *TranscriptRepository) MaxAttempt(ctx context.Context, planID, phase, targetNodeID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt), 0) FROM transcript_entries WHERE plan_id = ? AND phase = ? AND target_node_id = ?`,
		planID, phase, targetNodeID,
	).Scan(&n)
	if err != nil {
		return 0, wrapErr("get max attempt", err)
	}
	return n, nil
}

func scanTranscriptEntry(s scanner) (*secondary.TranscriptEntryRecord, error) {
	var (
		isRetry   int
		createdAt int64
	)
	e := &secondary.TranscriptEntryRecord{}
	err := s.Scan(&e.ID, &e.PlanID, &e.Phase, &e.TargetNodeID, &e.Attempt, &e.AgentID, &e.ConversationID,
		&e.RequestPayload, &e.ResponsePayload, &e.PromptTokens, &e.CompletionTokens, &e.LatencyMs,
		&e.ValidationStatus, &e.ValidationDetails, &isRetry, &createdAt)
	if err != nil {
		return nil, err
	}
	e.IsRetry = isRetry != 0
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	return e, nil
}

var _ secondary.TranscriptRepository = (*TranscriptRepository)(nil)
