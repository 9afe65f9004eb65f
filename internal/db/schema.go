package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the authoritative schema for fresh installs and tests.
// Timestamps are unix milliseconds.
const SchemaSQL = `
-- Plans
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	project_ref TEXT NOT NULL,
	primary_branch TEXT NOT NULL DEFAULT 'main',
	title TEXT NOT NULL DEFAULT '',
	template TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'completed', 'archived')),
	source_plan_id TEXT REFERENCES plans(id) ON DELETE SET NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_plans_project ON plans(project_ref, status);

-- Checkpoints: one lockable row per (plan, phase)
CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	phase TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'not_started' CHECK (status IN ('not_started', 'in_progress', 'blocked', 'complete')),
	completed_count INTEGER NOT NULL DEFAULT 0 CHECK (completed_count >= 0),
	target_count INTEGER CHECK (target_count IS NULL OR target_count >= 0),
	locked_by_agent TEXT,
	locked_by_conversation TEXT,
	locked_at INTEGER,
	lock_epoch INTEGER NOT NULL DEFAULT 0,
	blocked_reason TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER,
	UNIQUE (plan_id, phase),
	CHECK (target_count IS NULL OR completed_count <= target_count),
	CHECK (
		(locked_by_agent IS NULL AND locked_by_conversation IS NULL AND locked_at IS NULL)
		OR (locked_by_agent IS NOT NULL AND locked_by_conversation IS NOT NULL AND locked_at IS NOT NULL)
	)
);

-- Content slots: positions in the narrative hierarchy
CREATE TABLE IF NOT EXISTS content_slots (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	kind TEXT NOT NULL CHECK (kind IN ('world_bible_entry', 'chapter_blueprint', 'chapter_scroll', 'chapter_section', 'chapter_scene')),
	slot_key TEXT NOT NULL,
	container_slot_id TEXT REFERENCES content_slots(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL,
	UNIQUE (plan_id, kind, slot_key)
);

CREATE INDEX IF NOT EXISTS idx_content_slots_container ON content_slots(container_slot_id);

-- Content versions: seq is global creation order
CREATE TABLE IF NOT EXISTS content_versions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	slot_id TEXT NOT NULL REFERENCES content_slots(id) ON DELETE CASCADE,
	version_index INTEGER NOT NULL CHECK (version_index >= 1),
	is_active INTEGER NOT NULL DEFAULT 0 CHECK (is_active IN (0, 1)),
	derived_from_id TEXT REFERENCES content_versions(id) ON DELETE SET NULL,
	branch_tag TEXT,
	body TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	activated_at INTEGER,
	UNIQUE (slot_id, version_index)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_content_versions_one_active
	ON content_versions(slot_id) WHERE is_active = 1;

-- Backlog: seq is FIFO order
CREATE TABLE IF NOT EXISTS backlog_items (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	backlog_id TEXT NOT NULL,
	phase TEXT NOT NULL DEFAULT '',
	target_slot_id TEXT REFERENCES content_slots(id) ON DELETE SET NULL,
	description TEXT NOT NULL,
	inputs TEXT NOT NULL DEFAULT '[]',
	outputs TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'in_progress', 'complete', 'failed')),
	retryable INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	conversation_id TEXT,
	conversation_plan_id TEXT,
	task_id TEXT,
	provider_id TEXT,
	model_id TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	in_progress_at INTEGER,
	completed_at INTEGER,
	failed_at INTEGER,
	UNIQUE (plan_id, backlog_id)
);

CREATE INDEX IF NOT EXISTS idx_backlog_items_claim ON backlog_items(plan_id, status, seq);

-- Transcript: append-only attempt log
CREATE TABLE IF NOT EXISTS transcript_entries (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	phase TEXT NOT NULL,
	target_node_id TEXT NOT NULL DEFAULT '',
	attempt INTEGER NOT NULL CHECK (attempt >= 1),
	agent_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	request_payload TEXT NOT NULL DEFAULT '',
	response_payload TEXT NOT NULL DEFAULT '',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	validation_status TEXT NOT NULL CHECK (validation_status IN ('valid', 'invalid', 'error')),
	validation_details TEXT NOT NULL DEFAULT '',
	is_retry INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE (plan_id, phase, target_node_id, attempt)
);

CREATE TRIGGER IF NOT EXISTS trg_transcript_entries_immutable
BEFORE UPDATE ON transcript_entries
BEGIN
	SELECT RAISE(ABORT, 'transcript entries are append-only');
END;

-- Obligations
CREATE TABLE IF NOT EXISTS obligations (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	persona_id TEXT NOT NULL,
	slug TEXT NOT NULL,
	title TEXT NOT NULL,
	source_phase TEXT NOT NULL,
	source_backlog_id TEXT,
	branch_slug TEXT,
	status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved', 'dismissed')),
	resolved_by TEXT,
	resolved_at INTEGER,
	voice_drift INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (plan_id, persona_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_obligations_open ON obligations(plan_id, status, source_phase);

CREATE TABLE IF NOT EXISTS obligation_notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	obligation_id TEXT NOT NULL REFERENCES obligations(id) ON DELETE CASCADE,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TRIGGER IF NOT EXISTS trg_obligation_notes_immutable
BEFORE UPDATE ON obligation_notes
BEGIN
	SELECT RAISE(ABORT, 'obligation notes are append-only');
END;

-- Roster
CREATE TABLE IF NOT EXISTS characters (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	persona_id TEXT NOT NULL,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE (plan_id, persona_id)
);

CREATE TABLE IF NOT EXISTS lore_requirements (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	topic TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	slot_id TEXT REFERENCES content_slots(id) ON DELETE SET NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (plan_id, topic)
);

-- Audit log: survives plan deletion
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL CHECK (action IN ('create', 'update', 'delete')),
	field_name TEXT NOT NULL DEFAULT '',
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_plan ON audit_log(plan_id, created_at);
`

// GetSchemaSQL returns the authoritative schema SQL.
func GetSchemaSQL() string {
	return SchemaSQL
}

// InitSchema creates the schema on a fresh database and runs pending
// migrations on an existing one.
func InitSchema(db *sql.DB) error {
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	if tableCount > 0 {
		return RunMigrations(db)
	}

	// Fresh install: create the current schema directly and mark every
	// migration as applied.
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := tx.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	for _, m := range migrations {
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	return tx.Commit()
}
