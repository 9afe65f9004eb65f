package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

func TestPlanRepository_Create(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	logs := &recordingLogWriter{}
	repo := sqlite.NewPlanRepository(testDB, logs)

	plan := &secondary.PlanRecord{
		ID:            "PLAN-001",
		ProjectRef:    "saga",
		PrimaryBranch: "main",
		Title:         "The Long Road",
		Template:      "novel",
		Status:        "draft",
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	checkpoints := []*secondary.CheckpointRecord{
		{ID: "CKPT-1", PlanID: "PLAN-001", Phase: "world_bible", Position: 0, Status: "not_started", CreatedAt: testNow, UpdatedAt: testNow},
		{ID: "CKPT-2", PlanID: "PLAN-001", Phase: "blueprint", Position: 1, Status: "not_started", CreatedAt: testNow, UpdatedAt: testNow},
	}

	require.NoError(t, repo.Create(ctx, plan, checkpoints))

	got, err := repo.GetByID(ctx, "PLAN-001")
	require.NoError(t, err)
	assert.Equal(t, "The Long Road", got.Title)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, testNow, got.CreatedAt)
	assert.True(t, got.CompletedAt.IsZero())

	cps, err := sqlite.NewCheckpointRepository(testDB, nil).List(ctx, "PLAN-001")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "world_bible", cps[0].Phase)
	assert.Equal(t, "blueprint", cps[1].Phase)

	assert.Contains(t, logs.entries, "create plan PLAN-001")
}

func TestPlanRepository_Create_DuplicatePhaseRollsBack(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	repo := sqlite.NewPlanRepository(testDB, nil)

	plan := &secondary.PlanRecord{ID: "PLAN-001", ProjectRef: "saga", Status: "draft", CreatedAt: testNow, UpdatedAt: testNow}
	checkpoints := []*secondary.CheckpointRecord{
		{ID: "CKPT-1", PlanID: "PLAN-001", Phase: "drafting", Status: "not_started", CreatedAt: testNow, UpdatedAt: testNow},
		{ID: "CKPT-2", PlanID: "PLAN-001", Phase: "drafting", Status: "not_started", CreatedAt: testNow, UpdatedAt: testNow},
	}

	err := repo.Create(ctx, plan, checkpoints)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDuplicatePhase))
	assert.True(t, errors.Is(err, apperr.ErrDuplicateKey))

	_, err = repo.GetByID(ctx, "PLAN-001")
	assert.ErrorIs(t, err, apperr.ErrPlanNotFound, "plan insert should have rolled back")
}

func TestPlanRepository_GetByID_NotFound(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewPlanRepository(testDB, nil)

	_, err := repo.GetByID(context.Background(), "PLAN-999")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPlanRepository_List(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	seedPlan(t, testDB, "PLAN-002", "drafting")

	repo := sqlite.NewPlanRepository(testDB, nil)
	require.NoError(t, repo.UpdateStatus(ctx, "PLAN-002", "draft", "active", testNow))

	all, err := repo.List(ctx, secondary.PlanFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.List(ctx, secondary.PlanFilters{Status: "active"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "PLAN-002", active[0].ID)

	none, err := repo.List(ctx, secondary.PlanFilters{ProjectRef: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPlanRepository_UpdateStatus(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewPlanRepository(testDB, nil)

	require.NoError(t, repo.UpdateStatus(ctx, "PLAN-001", "draft", "active", testNow))

	// Stale from status loses the race.
	err := repo.UpdateStatus(ctx, "PLAN-001", "draft", "active", testNow)
	assert.ErrorIs(t, err, apperr.ErrPersistenceConflict)

	require.NoError(t, repo.UpdateStatus(ctx, "PLAN-001", "active", "completed", testNow))
	got, err := repo.GetByID(ctx, "PLAN-001")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, testNow, got.CompletedAt)

	err = repo.UpdateStatus(ctx, "PLAN-404", "draft", "active", testNow)
	assert.ErrorIs(t, err, apperr.ErrPlanNotFound)
}

func TestPlanRepository_Delete_Cascades(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	seedItem(t, testDB, "PLAN-001", "ch-1", "drafting", testNow)

	repo := sqlite.NewPlanRepository(testDB, nil)
	require.NoError(t, repo.Delete(ctx, "PLAN-001"))

	cps, err := sqlite.NewCheckpointRepository(testDB, nil).List(ctx, "PLAN-001")
	require.NoError(t, err)
	assert.Empty(t, cps)

	items, err := sqlite.NewBacklogRepository(testDB, nil).List(ctx, secondary.BacklogFilters{PlanID: "PLAN-001"})
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, repo.Delete(ctx, "PLAN-001"), apperr.ErrPlanNotFound)
}
