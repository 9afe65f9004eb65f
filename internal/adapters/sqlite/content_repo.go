package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

// ContentRepository implements secondary.ContentRepository with SQLite.
type ContentRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewContentRepository creates a new SQLite content repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewContentRepository(db *sql.DB, logWriter secondary.LogWriter) *ContentRepository {
	return &ContentRepository{db: db, logWriter: logWriter}
}

const (
	slotColumns    = `id, plan_id, kind, slot_key, container_slot_id, created_at`
	versionColumns = `seq, id, slot_id, version_index, is_active, derived_from_id, branch_tag, body, metadata, created_at, activated_at`
)

// CreateSlot persists a new slot.
func (r *ContentRepository) CreateSlot(ctx context.Context, slot *secondary.SlotRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content_slots (`+slotColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.PlanID, slot.Kind, slot.Key, nullString(slot.ContainerSlotID), slot.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", apperr.ErrDuplicateSlot, slot.Kind, slot.Key)
	}
	if err != nil {
		return wrapErr("create content slot", err)
	}

	logCreate(ctx, r.logWriter, slot.PlanID, "content_slot", slot.ID)
	return nil
}

// GetSlot retrieves a slot by its ID.
func (r *ContentRepository) GetSlot(ctx context.Context, id string) (*secondary.SlotRecord, error) {
	slot, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM content_slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSlotNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get content slot", err)
	}
	return slot, nil
}

// FindSlot retrieves a slot by its natural key.
func (r *ContentRepository) FindSlot(ctx context.Context, planID, kind, key string) (*secondary.SlotRecord, error) {
	slot, err := scanSlot(r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM content_slots WHERE plan_id = ? AND kind = ? AND slot_key = ?`,
		planID, kind, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", apperr.ErrSlotNotFound, kind, key)
	}
	if err != nil {
		return nil, wrapErr("find content slot", err)
	}
	return slot, nil
}

// ListSlots lists a plan's slots, optionally narrowed to one kind.
func (r *ContentRepository) ListSlots(ctx context.Context, planID, kind string) ([]*secondary.SlotRecord, error) {
	query := `SELECT ` + slotColumns + ` FROM content_slots WHERE plan_id = ?`
	args := []any{planID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY kind, slot_key"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list content slots", err)
	}
	defer rows.Close()

	var slots []*secondary.SlotRecord
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// CreateVersion inserts an inactive version with the next index for its slot.
func (r *ContentRepository) CreateVersion(ctx context.Context, p secondary.CreateVersionParams) (*secondary.VersionRecord, error) {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode version metadata: %w", err)
	}

	var v *secondary.VersionRecord
	err = withTx(ctx, r.db, "create version", func(tx *sql.Tx) error {
		var slotExists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM content_slots WHERE id = ?", p.SlotID).Scan(&slotExists); err != nil {
			return wrapErr("check content slot", err)
		}
		if slotExists == 0 {
			return fmt.Errorf("%w: %s", apperr.ErrSlotNotFound, p.SlotID)
		}

		if p.DerivedFromID != "" {
			var sourceSlot string
			err := tx.QueryRowContext(ctx, "SELECT slot_id FROM content_versions WHERE id = ?", p.DerivedFromID).Scan(&sourceSlot)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", apperr.ErrVersionNotFound, p.DerivedFromID)
			}
			if err != nil {
				return wrapErr("check derived version", err)
			}
			if sourceSlot != p.SlotID {
				return fmt.Errorf("%w: %s belongs to %s", apperr.ErrInvalidLineage, p.DerivedFromID, sourceSlot)
			}
		}

		// The source always has a smaller seq than the row inserted here, so
		// derived_from chains cannot form cycles.
		row := tx.QueryRowContext(ctx,
			`INSERT INTO content_versions (id, slot_id, version_index, is_active, derived_from_id, branch_tag, body, metadata, created_at)
			SELECT ?, ?, COALESCE(MAX(version_index), 0) + 1, 0, ?, ?, ?, ?, ?
			FROM content_versions WHERE slot_id = ?
			RETURNING `+versionColumns,
			p.ID, p.SlotID, nullString(p.DerivedFromID), nullString(p.BranchTag), p.Body, string(metadata),
			p.Now.UnixMilli(), p.SlotID,
		)
		var err error
		v, err = scanVersion(row)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slot %s", apperr.ErrDuplicateVersion, p.SlotID)
		}
		if err != nil {
			return wrapErr("create version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCreate(ctx, r.logWriter, "", "content_version", v.ID)
	return v, nil
}

// GetVersion retrieves a version by its ID.
func (r *ContentRepository) GetVersion(ctx context.Context, id string) (*secondary.VersionRecord, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM content_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrVersionNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get version", err)
	}
	return v, nil
}

// GetActive returns the slot's active version, or nil if none is active.
func (r *ContentRepository) GetActive(ctx context.Context, slotID string) (*secondary.VersionRecord, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM content_versions WHERE slot_id = ? AND is_active = 1`, slotID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get active version", err)
	}
	return v, nil
}

// ListVersions lists a slot's versions by index.
func (r *ContentRepository) ListVersions(ctx context.Context, slotID string) ([]*secondary.VersionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM content_versions WHERE slot_id = ? ORDER BY version_index`, slotID)
	if err != nil {
		return nil, wrapErr("list versions", err)
	}
	defer rows.Close()
	return collectVersions(rows)
}

// Activate makes id the only active version of its slot.
func (r *ContentRepository) Activate(ctx context.Context, id string, now time.Time) (*secondary.VersionRecord, error) {
	var (
		v          *secondary.VersionRecord
		previousID string
	)
	err := withTx(ctx, r.db, "activate version", func(tx *sql.Tx) error {
		var slotID string
		err := tx.QueryRowContext(ctx, "SELECT slot_id FROM content_versions WHERE id = ?", id).Scan(&slotID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", apperr.ErrVersionNotFound, id)
		}
		if err != nil {
			return wrapErr("get version slot", err)
		}

		err = tx.QueryRowContext(ctx,
			"SELECT id FROM content_versions WHERE slot_id = ? AND is_active = 1", slotID).Scan(&previousID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return wrapErr("get active version", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE content_versions SET is_active = 0 WHERE slot_id = ? AND is_active = 1 AND id != ?", slotID, id); err != nil {
			return wrapErr("deactivate versions", err)
		}

		v, err = scanVersion(tx.QueryRowContext(ctx,
			`UPDATE content_versions SET is_active = 1, activated_at = CASE WHEN is_active = 1 THEN activated_at ELSE ? END
			WHERE id = ?
			RETURNING `+versionColumns,
			now.UnixMilli(), id))
		if err != nil {
			return wrapErr("activate version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previousID != id {
		logUpdate(ctx, r.logWriter, "", "content_slot", v.SlotID, "active_version", previousID, id)
	}
	return v, nil
}

// Lineage walks derived_from pointers from id back to its root, newest first.
func (r *ContentRepository) Lineage(ctx context.Context, id string) ([]*secondary.VersionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH RECURSIVE chain(id, depth) AS (
			SELECT id, 0 FROM content_versions WHERE id = ?
			UNION ALL
			SELECT v.derived_from_id, chain.depth + 1
			FROM content_versions v JOIN chain ON v.id = chain.id
			WHERE v.derived_from_id IS NOT NULL
		)
		SELECT `+prefixColumns("v", versionColumns)+`
		FROM chain JOIN content_versions v ON v.id = chain.id
		ORDER BY chain.depth`,
		id)
	if err != nil {
		return nil, wrapErr("walk lineage", err)
	}
	defer rows.Close()

	list, err := collectVersions(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrVersionNotFound, id)
	}
	return list, nil
}

func collectVersions(rows *sql.Rows) ([]*secondary.VersionRecord, error) {
	var list []*secondary.VersionRecord
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

func scanSlot(s scanner) (*secondary.SlotRecord, error) {
	var (
		container sql.NullString
		createdAt int64
	)
	slot := &secondary.SlotRecord{}
	if err := s.Scan(&slot.ID, &slot.PlanID, &slot.Kind, &slot.Key, &container, &createdAt); err != nil {
		return nil, err
	}
	slot.ContainerSlotID = container.String
	slot.CreatedAt = time.UnixMilli(createdAt).UTC()
	return slot, nil
}

func scanVersion(s scanner) (*secondary.VersionRecord, error) {
	var (
		isActive    int
		derivedFrom sql.NullString
		branchTag   sql.NullString
		metadata    string
		createdAt   int64
		activatedAt sql.NullInt64
	)
	v := &secondary.VersionRecord{}
	err := s.Scan(&v.Seq, &v.ID, &v.SlotID, &v.VersionIndex, &isActive, &derivedFrom, &branchTag,
		&v.Body, &metadata, &createdAt, &activatedAt)
	if err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &v.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode version metadata: %w", err)
		}
	}
	v.IsActive = isActive != 0
	v.DerivedFromID = derivedFrom.String
	v.BranchTag = branchTag.String
	v.CreatedAt = time.UnixMilli(createdAt).UTC()
	v.ActivatedAt = fromMillis(activatedAt)
	return v, nil
}

var _ secondary.ContentRepository = (*ContentRepository)(nil)
