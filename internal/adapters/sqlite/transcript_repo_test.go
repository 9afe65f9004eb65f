package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

func transcriptEntry(id, target string, attempt int, status string) *secondary.TranscriptEntryRecord {
	return &secondary.TranscriptEntryRecord{
		ID:               id,
		PlanID:           "PLAN-001",
		Phase:            "drafting",
		TargetNodeID:     target,
		Attempt:          attempt,
		AgentID:          "WORKER-a",
		RequestPayload:   `{"prompt":"write"}`,
		ResponsePayload:  `{"body":"..."}`,
		PromptTokens:     100,
		CompletionTokens: 250,
		LatencyMs:        1200,
		ValidationStatus: status,
		IsRetry:          attempt > 1,
		CreatedAt:        testNow,
	}
}

func collect(t *testing.T, repo *sqlite.TranscriptRepository, filters secondary.TranscriptFilters) []*secondary.TranscriptEntryRecord {
	t.Helper()
	var out []*secondary.TranscriptEntryRecord
	for e, err := range repo.Entries(context.Background(), filters) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestTranscriptRepository_AppendAndQuery(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewTranscriptRepository(testDB)

	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-1", "ch-1", 1, "invalid")))
	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-2", "ch-2", 1, "valid")))
	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-3", "ch-1", 2, "valid")))

	target := "ch-1"
	history := collect(t, repo, secondary.TranscriptFilters{PlanID: "PLAN-001", Phase: "drafting", TargetNodeID: &target})
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Attempt)
	assert.Equal(t, 2, history[1].Attempt)
	assert.True(t, history[1].IsRetry)
	assert.Equal(t, int64(1200), history[1].LatencyMs)

	all := collect(t, repo, secondary.TranscriptFilters{PlanID: "PLAN-001", Phase: "drafting"})
	assert.Len(t, all, 3)

	highest, err := repo.MaxAttempt(ctx, "PLAN-001", "drafting", "ch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, highest)

	highest, err = repo.MaxAttempt(ctx, "PLAN-001", "drafting", "ch-9")
	require.NoError(t, err)
	assert.Zero(t, highest)
}

func TestTranscriptRepository_Append_RejectsOutOfOrder(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewTranscriptRepository(testDB)

	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-1", "ch-1", 2, "invalid")))

	assert.ErrorIs(t, repo.Append(ctx, transcriptEntry("TRN-2", "ch-1", 2, "valid")), apperr.ErrAttemptOutOfOrder)
	assert.ErrorIs(t, repo.Append(ctx, transcriptEntry("TRN-3", "ch-1", 1, "valid")), apperr.ErrAttemptOutOfOrder)

	// Gaps are allowed; only monotonicity is enforced.
	assert.NoError(t, repo.Append(ctx, transcriptEntry("TRN-4", "ch-1", 5, "valid")))
}

func TestTranscriptRepository_EntriesAreImmutable(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewTranscriptRepository(testDB)
	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-1", "ch-1", 1, "valid")))

	_, err := testDB.ExecContext(ctx, "UPDATE transcript_entries SET validation_status = 'invalid' WHERE id = 'TRN-1'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestTranscriptRepository_EntriesIsRestartable(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewTranscriptRepository(testDB)
	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-1", "ch-1", 1, "valid")))

	seq := repo.Entries(ctx, secondary.TranscriptFilters{PlanID: "PLAN-001"})

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())

	require.NoError(t, repo.Append(ctx, transcriptEntry("TRN-2", "ch-1", 2, "valid")))
	assert.Equal(t, 2, count(), "each range sees the current log")

	// Breaking early stops the query cleanly.
	for range seq {
		break
	}
}
