package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

// RosterRepository implements secondary.RosterRepository with SQLite.
type RosterRepository struct {
	db        *sql.DB
	logWriter secondary.LogWriter
}

// NewRosterRepository creates a new SQLite roster repository.
// logWriter is optional - if nil, no audit logging is performed.
func NewRosterRepository(db *sql.DB, logWriter secondary.LogWriter) *RosterRepository {
	return &RosterRepository{db: db, logWriter: logWriter}
}

// AddCharacter places a persona in a plan's cast.
func (r *RosterRepository) AddCharacter(ctx context.Context, c *secondary.CharacterRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO characters (id, plan_id, persona_id, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.PlanID, c.PersonaID, c.Name, c.Role, c.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: character %s", apperr.ErrDuplicateRoster, c.PersonaID)
	}
	if err != nil {
		return wrapErr("add character", err)
	}

	logCreate(ctx, r.logWriter, c.PlanID, "character", c.ID)
	return nil
}

// ListCharacters lists a plan's cast in the order it was added.
func (r *RosterRepository) ListCharacters(ctx context.Context, planID string) ([]*secondary.CharacterRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, persona_id, name, role, created_at FROM characters WHERE plan_id = ? ORDER BY created_at, id`,
		planID)
	if err != nil {
		return nil, wrapErr("list characters", err)
	}
	defer rows.Close()

	var list []*secondary.CharacterRecord
	for rows.Next() {
		var createdAt int64
		c := &secondary.CharacterRecord{}
		if err := rows.Scan(&c.ID, &c.PlanID, &c.PersonaID, &c.Name, &c.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		list = append(list, c)
	}
	return list, rows.Err()
}

// AddLoreRequirement records a world-bible entry the plan depends on.
func (r *RosterRepository) AddLoreRequirement(ctx context.Context, l *secondary.LoreRequirementRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lore_requirements (id, plan_id, topic, description, slot_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.PlanID, l.Topic, l.Description, nullString(l.SlotID), l.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: lore topic %s", apperr.ErrDuplicateRoster, l.Topic)
	}
	if err != nil {
		return wrapErr("add lore requirement", err)
	}

	logCreate(ctx, r.logWriter, l.PlanID, "lore_requirement", l.ID)
	return nil
}

// ListLoreRequirements lists a plan's lore requirements. A requirement is
// satisfied once its slot has an active version.
func (r *RosterRepository) ListLoreRequirements(ctx context.Context, planID string) ([]*secondary.LoreRequirementRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.plan_id, l.topic, l.description, l.slot_id, l.created_at,
			EXISTS (SELECT 1 FROM content_versions v WHERE v.slot_id = l.slot_id AND v.is_active = 1)
		FROM lore_requirements l WHERE l.plan_id = ? ORDER BY l.topic`,
		planID)
	if err != nil {
		return nil, wrapErr("list lore requirements", err)
	}
	defer rows.Close()

	var list []*secondary.LoreRequirementRecord
	for rows.Next() {
		var (
			slotID    sql.NullString
			createdAt int64
			satisfied int
		)
		l := &secondary.LoreRequirementRecord{}
		if err := rows.Scan(&l.ID, &l.PlanID, &l.Topic, &l.Description, &slotID, &createdAt, &satisfied); err != nil {
			return nil, fmt.Errorf("failed to scan lore requirement: %w", err)
		}
		l.SlotID = slotID.String
		l.Satisfied = satisfied != 0
		l.CreatedAt = time.UnixMilli(createdAt).UTC()
		list = append(list, l)
	}
	return list, rows.Err()
}

var _ secondary.RosterRepository = (*RosterRepository)(nil)
