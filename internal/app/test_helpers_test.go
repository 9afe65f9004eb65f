package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

func intPtr(n int) *int { return &n }

// ============================================================================
// Plans
// ============================================================================

var _ secondary.PlanRepository = (*mockPlanRepository)(nil)

type mockPlanRepository struct {
	mu          sync.Mutex
	plans       map[string]*secondary.PlanRecord
	checkpoints *mockCheckpointRepository
	createErr   error
	updateErr   error
	deleted     []string
	transitions []string
}

func newMockPlanRepository(checkpoints *mockCheckpointRepository) *mockPlanRepository {
	return &mockPlanRepository{
		plans:       make(map[string]*secondary.PlanRecord),
		checkpoints: checkpoints,
	}
}

func (m *mockPlanRepository) addPlan(id, status string) *secondary.PlanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &secondary.PlanRecord{ID: id, ProjectRef: "proj", PrimaryBranch: "main", Title: "The Long Tide", Status: status, CreatedAt: testNow}
	m.plans[id] = p
	return p
}

func (m *mockPlanRepository) Create(ctx context.Context, plan *secondary.PlanRecord, checkpoints []*secondary.CheckpointRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	m.plans[plan.ID] = plan
	m.mu.Unlock()
	for _, cp := range checkpoints {
		if err := m.checkpoints.Create(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockPlanRepository) GetByID(ctx context.Context, id string) (*secondary.PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrPlanNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlanRepository) List(ctx context.Context, filters secondary.PlanFilters) ([]*secondary.PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.PlanRecord
	for _, p := range m.plans {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockPlanRepository) UpdateStatus(ctx context.Context, id, from, to string, now time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrPlanNotFound, id)
	}
	if p.Status != from {
		return fmt.Errorf("%w: plan %s is no longer %s", apperr.ErrPersistenceConflict, id, from)
	}
	p.Status = to
	m.transitions = append(m.transitions, from+"->"+to)
	return nil
}

func (m *mockPlanRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plans, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// ============================================================================
// Checkpoints
// ============================================================================

var _ secondary.CheckpointRepository = (*mockCheckpointRepository)(nil)

type mockCheckpointRepository struct {
	mu           sync.Mutex
	checkpoints  map[string]*secondary.CheckpointRecord
	heartbeatErr error
	heartbeats   int
	releases     []secondary.ReleaseLockParams
}

func newMockCheckpointRepository() *mockCheckpointRepository {
	return &mockCheckpointRepository{checkpoints: make(map[string]*secondary.CheckpointRecord)}
}

func (m *mockCheckpointRepository) addCheckpoint(planID, phase string, target *int) *secondary.CheckpointRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := &secondary.CheckpointRecord{
		ID:          planID + "-CKPT-" + phase,
		PlanID:      planID,
		Phase:       phase,
		Position:    len(m.checkpoints) + 1,
		Status:      "not_started",
		TargetCount: target,
		CreatedAt:   testNow,
	}
	m.checkpoints[cp.ID] = cp
	return cp
}

func (m *mockCheckpointRepository) get(id string) *secondary.CheckpointRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.checkpoints[id]
	return &cp
}

func (m *mockCheckpointRepository) Create(ctx context.Context, cp *secondary.CheckpointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.checkpoints {
		if existing.PlanID == cp.PlanID && existing.Phase == cp.Phase {
			return fmt.Errorf("%w: %s", apperr.ErrDuplicatePhase, cp.Phase)
		}
	}
	m.checkpoints[cp.ID] = cp
	return nil
}

func (m *mockCheckpointRepository) GetByID(ctx context.Context, id string) (*secondary.CheckpointRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrCheckpointNotFound, id)
	}
	c := *cp
	return &c, nil
}

func (m *mockCheckpointRepository) GetByPhase(ctx context.Context, planID, phase string) (*secondary.CheckpointRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.checkpoints {
		if cp.PlanID == planID && cp.Phase == phase {
			c := *cp
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", apperr.ErrCheckpointNotFound, planID, phase)
}

func (m *mockCheckpointRepository) List(ctx context.Context, planID string) ([]*secondary.CheckpointRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.CheckpointRecord
	for _, cp := range m.checkpoints {
		if cp.PlanID == planID {
			c := *cp
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *mockCheckpointRepository) AcquireLock(ctx context.Context, p secondary.AcquireLockParams) (*secondary.CheckpointRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.checkpoints {
		if cp.PlanID != p.PlanID || cp.Phase != p.Phase {
			continue
		}
		if cp.Status == "complete" {
			return nil, fmt.Errorf("%w: phase %s is already complete", apperr.ErrInvalidState, p.Phase)
		}
		if cp.Locked() && cp.LockedAt.After(p.StaleBefore) {
			return nil, fmt.Errorf("%w: phase %s", apperr.ErrLockHeld, p.Phase)
		}
		cp.LockedByAgent = p.AgentID
		cp.LockedByConversation = p.ConversationID
		cp.LockedAt = p.Now
		cp.LockEpoch++
		cp.BlockedReason = ""
		cp.Status = "in_progress"
		c := *cp
		return &c, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", apperr.ErrCheckpointNotFound, p.PlanID, p.Phase)
}

func (m *mockCheckpointRepository) ReleaseLock(ctx context.Context, p secondary.ReleaseLockParams) (*secondary.CheckpointRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[p.CheckpointID]
	if !ok || !cp.Locked() || cp.LockEpoch != p.Epoch {
		return nil, fmt.Errorf("%w: %s", apperr.ErrLockStale, p.CheckpointID)
	}
	m.releases = append(m.releases, p)
	cp.CompletedCount += p.Increment
	if cp.TargetCount != nil && cp.CompletedCount > *cp.TargetCount {
		cp.CompletedCount = *cp.TargetCount
	}
	cp.Status = p.Status
	cp.BlockedReason = p.BlockedReason
	cp.LockedByAgent = ""
	cp.LockedByConversation = ""
	cp.LockedAt = time.Time{}
	c := *cp
	return &c, nil
}

func (m *mockCheckpointRepository) Heartbeat(ctx context.Context, checkpointID string, epoch int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	if m.heartbeatErr != nil {
		return m.heartbeatErr
	}
	cp, ok := m.checkpoints[checkpointID]
	if !ok || cp.LockEpoch != epoch || !cp.Locked() {
		return fmt.Errorf("%w: %s", apperr.ErrLockStale, checkpointID)
	}
	cp.LockedAt = now
	return nil
}

func (m *mockCheckpointRepository) SetTargetCount(ctx context.Context, checkpointID string, target *int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[checkpointID].TargetCount = target
	return nil
}

// ============================================================================
// Obligations
// ============================================================================

var _ secondary.ObligationRepository = (*mockObligationRepository)(nil)

type mockObligationRepository struct {
	obligations map[string]*secondary.ObligationRecord
	notes       map[string][]*secondary.ObligationNoteRecord
	openCount   int
	countErr    error
}

func newMockObligationRepository() *mockObligationRepository {
	return &mockObligationRepository{
		obligations: make(map[string]*secondary.ObligationRecord),
		notes:       make(map[string][]*secondary.ObligationNoteRecord),
	}
}

func (m *mockObligationRepository) Create(ctx context.Context, o *secondary.ObligationRecord) error {
	for _, existing := range m.obligations {
		if existing.PlanID == o.PlanID && existing.PersonaID == o.PersonaID && existing.Slug == o.Slug {
			return fmt.Errorf("%w: %s/%s", apperr.ErrDuplicateObligation, o.PersonaID, o.Slug)
		}
	}
	m.obligations[o.ID] = o
	return nil
}

func (m *mockObligationRepository) GetByID(ctx context.Context, id string) (*secondary.ObligationRecord, error) {
	o, ok := m.obligations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrObligationNotFound, id)
	}
	c := *o
	return &c, nil
}

func (m *mockObligationRepository) List(ctx context.Context, filters secondary.ObligationFilters) ([]*secondary.ObligationRecord, error) {
	var out []*secondary.ObligationRecord
	for _, o := range m.obligations {
		if o.PlanID != filters.PlanID || (filters.OpenOnly && o.Status != "open") {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockObligationRepository) CountOpen(ctx context.Context, planID, phase string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := m.openCount
	for _, o := range m.obligations {
		if o.PlanID == planID && o.Status == "open" && (phase == "" || o.SourcePhase == phase) {
			n++
		}
	}
	return n, nil
}

func (m *mockObligationRepository) Close(ctx context.Context, p secondary.CloseObligationParams) (*secondary.ObligationRecord, error) {
	o, ok := m.obligations[p.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrObligationNotFound, p.ID)
	}
	if o.Status != "open" {
		return nil, fmt.Errorf("%w: obligation %s is %s", apperr.ErrInvalidState, p.ID, o.Status)
	}
	o.Status = p.Status
	o.ResolvedBy = p.Actor
	o.ResolvedAt = p.Now
	o.VoiceDrift = o.VoiceDrift || p.VoiceDrift
	m.notes[p.ID] = append(m.notes[p.ID], &secondary.ObligationNoteRecord{
		ObligationID: p.ID, Actor: p.Actor, Action: p.Action, Notes: p.Notes, CreatedAt: p.Now,
	})
	c := *o
	return &c, nil
}

func (m *mockObligationRepository) AppendNote(ctx context.Context, note *secondary.ObligationNoteRecord) error {
	if _, ok := m.obligations[note.ObligationID]; !ok {
		return fmt.Errorf("%w: %s", apperr.ErrObligationNotFound, note.ObligationID)
	}
	m.notes[note.ObligationID] = append(m.notes[note.ObligationID], note)
	return nil
}

func (m *mockObligationRepository) Notes(ctx context.Context, obligationID string) ([]*secondary.ObligationNoteRecord, error) {
	return m.notes[obligationID], nil
}

// ============================================================================
// Backlog
// ============================================================================

var _ secondary.BacklogRepository = (*mockBacklogRepository)(nil)

type mockBacklogRepository struct {
	items       map[string]*secondary.BacklogItemRecord // by backlog id
	claimErr    error
	transitions []secondary.TransitionParams
	resumes     []secondary.ResumeParams
}

func newMockBacklogRepository() *mockBacklogRepository {
	return &mockBacklogRepository{items: make(map[string]*secondary.BacklogItemRecord)}
}

func (m *mockBacklogRepository) addItem(backlogID, status string) *secondary.BacklogItemRecord {
	item := &secondary.BacklogItemRecord{
		ID:          "ITEM-" + backlogID,
		Seq:         int64(len(m.items) + 1),
		PlanID:      "PLAN-001",
		BacklogID:   backlogID,
		Phase:       "drafting",
		Description: "draft " + backlogID,
		Status:      status,
		CreatedAt:   testNow,
	}
	m.items[backlogID] = item
	return item
}

func (m *mockBacklogRepository) Create(ctx context.Context, item *secondary.BacklogItemRecord) error {
	if _, ok := m.items[item.BacklogID]; ok {
		return fmt.Errorf("%w: %s", apperr.ErrDuplicateBacklogID, item.BacklogID)
	}
	item.Seq = int64(len(m.items) + 1)
	m.items[item.BacklogID] = item
	return nil
}

func (m *mockBacklogRepository) Get(ctx context.Context, planID, backlogID string) (*secondary.BacklogItemRecord, error) {
	item, ok := m.items[backlogID]
	if !ok || item.PlanID != planID {
		return nil, fmt.Errorf("%w: %s", apperr.ErrBacklogItemNotFound, backlogID)
	}
	c := *item
	return &c, nil
}

func (m *mockBacklogRepository) List(ctx context.Context, filters secondary.BacklogFilters) ([]*secondary.BacklogItemRecord, error) {
	var out []*secondary.BacklogItemRecord
	for _, item := range m.items {
		if filters.Status != "" && item.Status != filters.Status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *mockBacklogRepository) ClaimNext(ctx context.Context, p secondary.ClaimParams) (*secondary.BacklogItemRecord, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	items, _ := m.List(ctx, secondary.BacklogFilters{Status: "pending"})
	if len(items) == 0 {
		return nil, apperr.ErrNoWorkAvailable
	}
	item := items[0]
	item.Status = "in_progress"
	item.AttemptCount++
	item.Execution = p.Execution
	c := *item
	return &c, nil
}

func (m *mockBacklogRepository) Transition(ctx context.Context, p secondary.TransitionParams) (*secondary.BacklogItemRecord, error) {
	item, ok := m.items[p.BacklogID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrBacklogItemNotFound, p.BacklogID)
	}
	if item.Status != p.From {
		return nil, fmt.Errorf("%w: %s is %s, not %s", apperr.ErrInvalidTransition, p.BacklogID, item.Status, p.From)
	}
	m.transitions = append(m.transitions, p)
	item.Status = p.To
	item.FailureReason = p.FailureReason
	item.Retryable = p.Retryable
	if p.Outputs != nil {
		item.Outputs = p.Outputs
	}
	c := *item
	return &c, nil
}

func (m *mockBacklogRepository) Resume(ctx context.Context, p secondary.ResumeParams) (*secondary.BacklogItemRecord, error) {
	item, ok := m.items[p.BacklogID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrBacklogItemNotFound, p.BacklogID)
	}
	m.resumes = append(m.resumes, p)
	item.Status = "in_progress"
	item.AttemptCount = 1
	item.Execution = p.Execution
	c := *item
	return &c, nil
}

func (m *mockBacklogRepository) CountByStatus(ctx context.Context, planID, phase string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, item := range m.items {
		counts[item.Status]++
	}
	return counts, nil
}

func (m *mockBacklogRepository) CountRetryable(ctx context.Context, planID, phase string) (int, error) {
	n := 0
	for _, item := range m.items {
		if item.Status == "failed" && item.Retryable {
			n++
		}
	}
	return n, nil
}

// ============================================================================
// Personas
// ============================================================================

var _ secondary.PersonaDirectory = (*mockPersonaDirectory)(nil)

type mockPersonaDirectory struct {
	personas map[string]*secondary.PersonaRecord
}

func newMockPersonaDirectory(personas ...*secondary.PersonaRecord) *mockPersonaDirectory {
	m := &mockPersonaDirectory{personas: make(map[string]*secondary.PersonaRecord)}
	for _, p := range personas {
		m.personas[p.ID] = p
	}
	return m
}

func (m *mockPersonaDirectory) Lookup(ctx context.Context, personaID string) (*secondary.PersonaRecord, error) {
	p, ok := m.personas[personaID]
	if !ok {
		return nil, fmt.Errorf("%w: persona %s", apperr.ErrNotFound, personaID)
	}
	return p, nil
}

func (m *mockPersonaDirectory) List(ctx context.Context) ([]*secondary.PersonaRecord, error) {
	var out []*secondary.PersonaRecord
	for _, p := range m.personas {
		out = append(out, p)
	}
	return out, nil
}
