package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/ports/secondary"
)

func TestLogWriterAdapter_RecordsActor(t *testing.T) {
	testDB := setupTestDB(t)
	logRepo := sqlite.NewAuditLogRepository(testDB)
	writer := sqlite.NewLogWriterAdapter(logRepo)
	plans := sqlite.NewPlanRepository(testDB, writer)

	ctx := ctxutil.WithActorID(context.Background(), "WORKER-a")
	seedPlan(t, testDB, "PLAN-001", "drafting")
	require.NoError(t, plans.UpdateStatus(ctx, "PLAN-001", "draft", "active", testNow))

	entries, err := logRepo.List(context.Background(), secondary.AuditLogFilters{PlanID: "PLAN-001", EntityType: "plan"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "WORKER-a", entries[0].ActorID)
	assert.Equal(t, "update", entries[0].Action)
	assert.Equal(t, "status", entries[0].FieldName)
	assert.Equal(t, "draft", entries[0].OldValue)
	assert.Equal(t, "active", entries[0].NewValue)
}

func TestAuditLogRepository_ListOrderAndPrune(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	repo := sqlite.NewAuditLogRepository(testDB)

	for i, at := range []time.Time{testNow.Add(-48 * time.Hour), testNow.Add(-time.Hour), testNow} {
		require.NoError(t, repo.Create(ctx, &secondary.AuditLogRecord{
			PlanID:     "PLAN-001",
			EntityType: "backlog_item",
			EntityID:   "ch-1",
			Action:     "update",
			FieldName:  "status",
			NewValue:   []string{"pending", "in_progress", "complete"}[i],
			CreatedAt:  at,
		}))
	}

	newest, err := repo.List(ctx, secondary.AuditLogFilters{EntityID: "ch-1"})
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, "complete", newest[0].NewValue)

	oldest, err := repo.List(ctx, secondary.AuditLogFilters{EntityID: "ch-1", Ascending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "pending", oldest[0].NewValue)

	n, err := repo.PruneOlderThan(ctx, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := repo.List(ctx, secondary.AuditLogFilters{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
