package app_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/quill/internal/adapters/sqlite"
	"github.com/example/quill/internal/app"
	"github.com/example/quill/internal/db"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// harness wires every service over a real database, the way the CLI does.
type harness struct {
	plans       *app.PlanServiceImpl
	checkpoints *app.CheckpointServiceImpl
	backlog     *app.BacklogServiceImpl
	content     *app.ContentServiceImpl
	transcripts *app.TranscriptServiceImpl
	obligations *app.ObligationServiceImpl
	logs        *app.LogServiceImpl
	work        *app.WorkServiceImpl
	gen         *scriptedGenerator
}

type harnessOptions struct {
	maxAttempts             int
	requireObligationsClear bool
	// wrapBacklog replaces the backlog service the runner sees.
	wrapBacklog func(primary.BacklogService) primary.BacklogService
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "quill.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logRepo := sqlite.NewAuditLogRepository(database)
	logWriter := sqlite.NewLogWriterAdapter(logRepo)
	planRepo := sqlite.NewPlanRepository(database, logWriter)
	checkpointRepo := sqlite.NewCheckpointRepository(database, logWriter)
	backlogRepo := sqlite.NewBacklogRepository(database, logWriter)
	contentRepo := sqlite.NewContentRepository(database, logWriter)
	transcriptRepo := sqlite.NewTranscriptRepository(database)
	obligationRepo := sqlite.NewObligationRepository(database, logWriter)
	rosterRepo := sqlite.NewRosterRepository(database, logWriter)
	personas := stubPersonas{"mara": {ID: "mara", DisplayName: "Mara Quell", Voice: "dry, clipped"}}

	if opts.maxAttempts == 0 {
		opts.maxAttempts = 3
	}

	h := &harness{gen: newScriptedGenerator()}
	h.plans = app.NewPlanService(planRepo, checkpointRepo, backlogRepo, obligationRepo, contentRepo, rosterRepo, personas)
	h.checkpoints = app.NewCheckpointService(checkpointRepo, planRepo, obligationRepo, app.CheckpointConfig{
		LockTimeout:             10 * time.Minute,
		RequireObligationsClear: opts.requireObligationsClear,
		Retry:                   app.RetryPolicy{MaxAttempts: 3, InitialInterval: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond},
	})
	h.backlog = app.NewBacklogService(backlogRepo, planRepo, logRepo)
	h.content = app.NewContentService(contentRepo, planRepo)
	h.transcripts = app.NewTranscriptService(transcriptRepo)
	h.obligations = app.NewObligationService(obligationRepo, planRepo, personas)
	h.logs = app.NewLogService(logRepo)
	var runnerBacklog primary.BacklogService = h.backlog
	if opts.wrapBacklog != nil {
		runnerBacklog = opts.wrapBacklog(h.backlog)
	}
	h.work = app.NewWorkService(h.checkpoints, runnerBacklog, h.content, h.transcripts, h.obligations, h.gen, app.WorkConfig{
		MaxAttempts: opts.maxAttempts,
		Workers:     2,
		ProviderID:  "test-provider",
		ModelID:     "test-model",
		Retry:       app.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})
	return h
}

// createPlan makes a plan with the given phases, none with a target.
func (h *harness) createPlan(t *testing.T, phases ...string) string {
	t.Helper()
	specs := make([]primary.PhaseSpec, len(phases))
	for i, p := range phases {
		specs[i] = primary.PhaseSpec{Name: p}
	}
	resp, err := h.plans.CreatePlan(context.Background(), primary.CreatePlanRequest{
		ProjectRef: "lighthouse-novel",
		Title:      "The Long Tide",
		Phases:     specs,
	})
	require.NoError(t, err)
	return resp.PlanID
}

func (h *harness) enqueue(t *testing.T, planID, phase, backlogID, slotID string) {
	t.Helper()
	_, err := h.backlog.Enqueue(context.Background(), primary.EnqueueRequest{
		PlanID:       planID,
		BacklogID:    backlogID,
		Phase:        phase,
		TargetSlotID: slotID,
		Description:  "Write " + backlogID,
	})
	require.NoError(t, err)
}

func (h *harness) blueprint(t *testing.T, planID, key string) string {
	t.Helper()
	slot, err := h.content.EnsureSlot(context.Background(), primary.EnsureSlotRequest{
		PlanID: planID,
		Kind:   "chapter_blueprint",
		Key:    key,
	})
	require.NoError(t, err)
	return slot.ID
}

// stubPersonas is a fixed persona directory.
type stubPersonas map[string]*secondary.PersonaRecord

func (s stubPersonas) Lookup(ctx context.Context, personaID string) (*secondary.PersonaRecord, error) {
	if p, ok := s[personaID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("persona %s not found", personaID)
}

func (s stubPersonas) List(ctx context.Context) ([]*secondary.PersonaRecord, error) {
	out := make([]*secondary.PersonaRecord, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	return out, nil
}

// scriptStep is one canned generator reply.
type scriptStep struct {
	result *secondary.GenerationResult
	err    error
}

// scriptedGenerator replays per-item scripts; items without a script (or
// past its end) get a valid draft.
type scriptedGenerator struct {
	mu       sync.Mutex
	scripts  map[string][]scriptStep
	requests []secondary.GenerationRequest
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{scripts: make(map[string][]scriptStep)}
}

func (g *scriptedGenerator) script(backlogID string, steps ...scriptStep) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[backlogID] = append(g.scripts[backlogID], steps...)
}

func (g *scriptedGenerator) Generate(ctx context.Context, req secondary.GenerationRequest) (*secondary.GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)

	if steps := g.scripts[req.BacklogID]; len(steps) > 0 {
		g.scripts[req.BacklogID] = steps[1:]
		if steps[0].err != nil {
			return nil, steps[0].err
		}
		res := *steps[0].result
		return &res, nil
	}
	return &secondary.GenerationResult{
		Validation:      "valid",
		Body:            fmt.Sprintf("Draft of %s, attempt %d.", req.BacklogID, req.Attempt),
		Title:           req.BacklogID,
		Usage:           secondary.GenerationUsage{PromptTokens: 120, CompletionTokens: 800},
		RequestPayload:  `{"prompt":"` + req.Description + `"}`,
		ResponsePayload: `{"ok":true}`,
	}, nil
}

func (g *scriptedGenerator) calls() []secondary.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]secondary.GenerationRequest(nil), g.requests...)
}

func invalid(details string) scriptStep {
	return scriptStep{result: &secondary.GenerationResult{Validation: "invalid", ValidationDetails: details}}
}

// collect drains a history iterator.
func collect(t *testing.T, h *harness, q primary.HistoryQuery) []*primary.TranscriptEntry {
	t.Helper()
	var out []*primary.TranscriptEntry
	for entry, err := range h.transcripts.QueryHistory(context.Background(), q) {
		require.NoError(t, err)
		out = append(out, entry)
	}
	return out
}
