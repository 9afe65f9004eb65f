package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

func raiseObligation(t *testing.T, repo *sqlite.ObligationRepository, id, persona, slug, phase string) *secondary.ObligationRecord {
	t.Helper()
	o := &secondary.ObligationRecord{
		ID:          id,
		PlanID:      "PLAN-001",
		PersonaID:   persona,
		Slug:        slug,
		Title:       "Resolve " + slug,
		SourcePhase: phase,
		Status:      "open",
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	require.NoError(t, repo.Create(context.Background(), o))
	return o
}

func TestObligationRepository_Create_Duplicate(t *testing.T) {
	testDB := setupTestDB(t)
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewObligationRepository(testDB, nil)

	raiseObligation(t, repo, "OBL-1", "mira", "lost-sword", "drafting")
	err := repo.Create(context.Background(), &secondary.ObligationRecord{
		ID: "OBL-2", PlanID: "PLAN-001", PersonaID: "mira", Slug: "lost-sword", Title: "again",
		SourcePhase: "drafting", Status: "open", CreatedAt: testNow, UpdatedAt: testNow,
	})
	assert.ErrorIs(t, err, apperr.ErrDuplicateObligation)

	// Another persona may owe the same slug.
	raiseObligation(t, repo, "OBL-3", "tomas", "lost-sword", "drafting")
}

func TestObligationRepository_ListAndCount(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting", "editing")
	repo := sqlite.NewObligationRepository(testDB, nil)

	raiseObligation(t, repo, "OBL-1", "mira", "lost-sword", "drafting")
	raiseObligation(t, repo, "OBL-2", "mira", "old-debt", "editing")
	raiseObligation(t, repo, "OBL-3", "tomas", "promise", "drafting")

	_, err := repo.Close(ctx, secondary.CloseObligationParams{
		ID: "OBL-3", Status: "dismissed", Action: "dismiss", Actor: "OPERATOR", Now: testNow,
	})
	require.NoError(t, err)

	open, err := repo.List(ctx, secondary.ObligationFilters{PlanID: "PLAN-001", OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	all, err := repo.List(ctx, secondary.ObligationFilters{PlanID: "PLAN-001"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mira, err := repo.List(ctx, secondary.ObligationFilters{PlanID: "PLAN-001", PersonaID: "mira"})
	require.NoError(t, err)
	assert.Len(t, mira, 2)

	n, err := repo.CountOpen(ctx, "PLAN-001", "drafting")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountOpen(ctx, "PLAN-001", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestObligationRepository_Close(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewObligationRepository(testDB, nil)
	raiseObligation(t, repo, "OBL-1", "mira", "lost-sword", "drafting")

	closedAt := testNow.Add(time.Hour)
	o, err := repo.Close(ctx, secondary.CloseObligationParams{
		ID: "OBL-1", Status: "resolved", Action: "resolve", Actor: "WORKER-a",
		Notes: "sword returned in ch-4", VoiceDrift: true, Now: closedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "resolved", o.Status)
	assert.Equal(t, "WORKER-a", o.ResolvedBy)
	assert.Equal(t, closedAt, o.ResolvedAt)
	assert.True(t, o.VoiceDrift)

	_, err = repo.Close(ctx, secondary.CloseObligationParams{
		ID: "OBL-1", Status: "dismissed", Action: "dismiss", Actor: "OPERATOR", Now: closedAt,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = repo.Close(ctx, secondary.CloseObligationParams{ID: "OBL-9", Status: "resolved", Action: "resolve", Now: closedAt})
	assert.ErrorIs(t, err, apperr.ErrObligationNotFound)

	notes, err := repo.Notes(ctx, "OBL-1")
	require.NoError(t, err)
	require.Len(t, notes, 1, "rejected closes leave no note")
	assert.Equal(t, "sword returned in ch-4", notes[0].Notes)
}

func TestObligationRepository_NotesAppendOnly(t *testing.T) {
	testDB := setupTestDB(t)
	ctx := context.Background()
	seedPlan(t, testDB, "PLAN-001", "drafting")
	repo := sqlite.NewObligationRepository(testDB, nil)
	raiseObligation(t, repo, "OBL-1", "mira", "lost-sword", "drafting")

	require.NoError(t, repo.AppendNote(ctx, &secondary.ObligationNoteRecord{
		ObligationID: "OBL-1", Actor: "OPERATOR", Action: "note", Notes: "first", CreatedAt: testNow,
	}))
	require.NoError(t, repo.AppendNote(ctx, &secondary.ObligationNoteRecord{
		ObligationID: "OBL-1", Actor: "OPERATOR", Action: "note", Notes: "second", CreatedAt: testNow,
	}))

	notes, err := repo.Notes(ctx, "OBL-1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "first", notes[0].Notes)
	assert.Equal(t, "second", notes[1].Notes)

	_, err = testDB.ExecContext(ctx, "UPDATE obligation_notes SET notes = 'rewritten'")
	assert.Error(t, err)

	err = repo.AppendNote(ctx, &secondary.ObligationNoteRecord{ObligationID: "OBL-9", Actor: "x", Action: "note", CreatedAt: testNow})
	assert.ErrorIs(t, err, apperr.ErrObligationNotFound)
}
