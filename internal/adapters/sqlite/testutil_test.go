// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// setupTestDB is the single point where the schema is loaded for tests. It
// goes through db.Open, so tests run against the authoritative schema and
// the same connection options as production.
//
// DO NOT hardcode CREATE TABLE statements in test files.
package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/db"
	"github.com/example/quill/internal/ports/secondary"
)

// testNow is the fixed clock used across repository tests.
var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB opens a file-backed database in a temp dir. A file (rather than
// :memory:) lets concurrent connections share it.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.Open(filepath.Join(t.TempDir(), "quill.db"))
	require.NoError(t, err, "failed to open test db")

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedPlan inserts a draft plan with one checkpoint per phase.
func seedPlan(t *testing.T, testDB *sql.DB, id string, phases ...string) *secondary.PlanRecord {
	t.Helper()
	if id == "" {
		id = "PLAN-001"
	}

	plan := &secondary.PlanRecord{
		ID:            id,
		ProjectRef:    "saga",
		PrimaryBranch: "main",
		Title:         "Test Plan",
		Status:        "draft",
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}

	var checkpoints []*secondary.CheckpointRecord
	for i, phase := range phases {
		checkpoints = append(checkpoints, &secondary.CheckpointRecord{
			ID:        id + "-CKPT-" + phase,
			PlanID:    id,
			Phase:     phase,
			Position:  i,
			Status:    "not_started",
			CreatedAt: testNow,
			UpdatedAt: testNow,
		})
	}

	repo := sqlite.NewPlanRepository(testDB, nil)
	require.NoError(t, repo.Create(context.Background(), plan, checkpoints), "failed to seed plan")
	return plan
}

// seedSlot inserts a content slot and returns it.
func seedSlot(t *testing.T, testDB *sql.DB, planID, id, kind, key string) *secondary.SlotRecord {
	t.Helper()

	slot := &secondary.SlotRecord{
		ID:        id,
		PlanID:    planID,
		Kind:      kind,
		Key:       key,
		CreatedAt: testNow,
	}
	repo := sqlite.NewContentRepository(testDB, nil)
	require.NoError(t, repo.CreateSlot(context.Background(), slot), "failed to seed slot")
	return slot
}

// seedItem enqueues a pending backlog item.
func seedItem(t *testing.T, testDB *sql.DB, planID, backlogID, phase string, at time.Time) *secondary.BacklogItemRecord {
	t.Helper()

	item := &secondary.BacklogItemRecord{
		ID:          "ITEM-" + planID + "-" + backlogID,
		PlanID:      planID,
		BacklogID:   backlogID,
		Phase:       phase,
		Description: "write " + backlogID,
		Inputs:      []string{"outline"},
		Status:      "pending",
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	repo := sqlite.NewBacklogRepository(testDB, nil)
	require.NoError(t, repo.Create(context.Background(), item), "failed to seed backlog item")
	return item
}

// recordingLogWriter collects audit calls.
type recordingLogWriter struct {
	entries []string
}

func (w *recordingLogWriter) LogCreate(_ context.Context, _, entityType, entityID string) error {
	w.entries = append(w.entries, "create "+entityType+" "+entityID)
	return nil
}

func (w *recordingLogWriter) LogUpdate(_ context.Context, _, entityType, entityID, field, oldValue, newValue string) error {
	w.entries = append(w.entries, "update "+entityType+" "+entityID+" "+field+" "+oldValue+"->"+newValue)
	return nil
}

func (w *recordingLogWriter) LogDelete(_ context.Context, _, entityType, entityID string) error {
	w.entries = append(w.entries, "delete "+entityType+" "+entityID)
	return nil
}
