package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/quill/internal/apperr"
	corecheckpoint "github.com/example/quill/internal/core/checkpoint"
	corecontent "github.com/example/quill/internal/core/content"
	coreplan "github.com/example/quill/internal/core/plan"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// PlanServiceImpl implements the PlanService interface.
type PlanServiceImpl struct {
	planRepo       secondary.PlanRepository
	checkpointRepo secondary.CheckpointRepository
	backlogRepo    secondary.BacklogRepository
	obligationRepo secondary.ObligationRepository
	contentRepo    secondary.ContentRepository
	rosterRepo     secondary.RosterRepository
	personas       secondary.PersonaDirectory
	now            func() time.Time
}

// NewPlanService creates a new PlanService with injected dependencies.
func NewPlanService(
	planRepo secondary.PlanRepository,
	checkpointRepo secondary.CheckpointRepository,
	backlogRepo secondary.BacklogRepository,
	obligationRepo secondary.ObligationRepository,
	contentRepo secondary.ContentRepository,
	rosterRepo secondary.RosterRepository,
	personas secondary.PersonaDirectory,
) *PlanServiceImpl {
	return &PlanServiceImpl{
		planRepo:       planRepo,
		checkpointRepo: checkpointRepo,
		backlogRepo:    backlogRepo,
		obligationRepo: obligationRepo,
		contentRepo:    contentRepo,
		rosterRepo:     rosterRepo,
		personas:       personas,
		now:            time.Now,
	}
}

// CreatePlan creates a draft plan with one not-started checkpoint per phase.
func (s *PlanServiceImpl) CreatePlan(ctx context.Context, req primary.CreatePlanRequest) (*primary.CreatePlanResponse, error) {
	names := make([]string, len(req.Phases))
	for i, p := range req.Phases {
		names[i] = p.Name
	}
	guard := coreplan.CanCreatePlan(coreplan.CreatePlanContext{
		ProjectRef: req.ProjectRef,
		Phases:     names,
	})
	if err := guard.Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}
	for _, p := range req.Phases {
		if p.TargetCount != nil && *p.TargetCount < 0 {
			return nil, fmt.Errorf("%w: phase %s has a negative target count", apperr.ErrInvalidArgument, p.Name)
		}
	}

	branch := req.PrimaryBranch
	if branch == "" {
		branch = "main"
	}
	return s.create(ctx, &secondary.PlanRecord{
		ProjectRef:    req.ProjectRef,
		PrimaryBranch: branch,
		Title:         req.Title,
		Template:      req.Template,
	}, req.Phases)
}

func (s *PlanServiceImpl) create(ctx context.Context, plan *secondary.PlanRecord, phases []primary.PhaseSpec) (*primary.CreatePlanResponse, error) {
	now := s.now()
	plan.ID = ids.New(ids.Plan)
	plan.Status = coreplan.StatusDraft
	plan.CreatedAt = now
	plan.UpdatedAt = now

	checkpoints := make([]*secondary.CheckpointRecord, len(phases))
	for i, p := range phases {
		checkpoints[i] = newCheckpoint(plan.ID, p.Name, i+1, p.TargetCount, now)
	}

	if err := s.planRepo.Create(ctx, plan, checkpoints); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	log.Info("plan created", "plan", plan.ID, "project", plan.ProjectRef, "phases", len(phases))

	return &primary.CreatePlanResponse{
		PlanID:      plan.ID,
		Plan:        recordToPlan(plan),
		Checkpoints: recordsToCheckpoints(checkpoints),
	}, nil
}

func newCheckpoint(planID, phase string, position int, target *int, now time.Time) *secondary.CheckpointRecord {
	return &secondary.CheckpointRecord{
		ID:          ids.New(ids.Checkpoint),
		PlanID:      planID,
		Phase:       phase,
		Position:    position,
		Status:      corecheckpoint.StatusNotStarted,
		TargetCount: target,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// GetPlan retrieves a plan by ID.
func (s *PlanServiceImpl) GetPlan(ctx context.Context, planID string) (*primary.Plan, error) {
	record, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	return recordToPlan(record), nil
}

// ListPlans lists plans with optional filters.
func (s *PlanServiceImpl) ListPlans(ctx context.Context, filters primary.PlanFilters) ([]*primary.Plan, error) {
	records, err := s.planRepo.List(ctx, secondary.PlanFilters{
		ProjectRef: filters.ProjectRef,
		Status:     filters.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	plans := make([]*primary.Plan, len(records))
	for i, r := range records {
		plans[i] = recordToPlan(r)
	}
	return plans, nil
}

// EnterPhase adds a not-started checkpoint for a new phase. A completed
// plan becomes active again.
func (s *PlanServiceImpl) EnterPhase(ctx context.Context, req primary.EnterPhaseRequest) (*primary.Checkpoint, error) {
	plan, err := s.planRepo.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	existing, err := s.checkpointRepo.List(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	position := 0
	exists := false
	for _, cp := range existing {
		position = max(position, cp.Position)
		if cp.Phase == req.Phase {
			exists = true
		}
	}

	guard := coreplan.CanEnterPhase(coreplan.EnterPhaseContext{
		PlanID:      req.PlanID,
		PlanStatus:  plan.Status,
		Phase:       req.Phase,
		PhaseExists: exists,
	})
	if err := guard.Error(); err != nil {
		switch {
		case exists:
			return nil, guardError(apperr.ErrDuplicatePhase, err)
		case plan.Status == coreplan.StatusArchived:
			return nil, guardError(apperr.ErrInvalidState, err)
		default:
			return nil, guardError(apperr.ErrInvalidArgument, err)
		}
	}
	if req.TargetCount != nil && *req.TargetCount < 0 {
		return nil, fmt.Errorf("%w: target count must not be negative", apperr.ErrInvalidArgument)
	}

	now := s.now()
	cp := newCheckpoint(req.PlanID, req.Phase, position+1, req.TargetCount, now)
	if err := s.checkpointRepo.Create(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to enter phase: %w", err)
	}

	if plan.Status == coreplan.StatusCompleted {
		if err := s.planRepo.UpdateStatus(ctx, req.PlanID, coreplan.StatusCompleted, coreplan.StatusActive, now); err != nil &&
			!errors.Is(err, apperr.ErrPersistenceConflict) {
			return nil, fmt.Errorf("failed to reopen plan: %w", err)
		}
	}
	return recordToCheckpoint(cp), nil
}

// SetPlanStatus moves a plan through its lifecycle.
func (s *PlanServiceImpl) SetPlanStatus(ctx context.Context, planID, status string) (*primary.Plan, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := coreplan.CanTransition(planID, plan.Status, status).Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidTransition, err)
	}
	if err := s.planRepo.UpdateStatus(ctx, planID, plan.Status, status, s.now()); err != nil {
		return nil, fmt.Errorf("failed to update plan status: %w", err)
	}
	return s.GetPlan(ctx, planID)
}

// BranchPlan creates a new draft plan with the source's phases.
func (s *PlanServiceImpl) BranchPlan(ctx context.Context, req primary.BranchPlanRequest) (*primary.CreatePlanResponse, error) {
	source, err := s.planRepo.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	guard := coreplan.CanBranchPlan(coreplan.BranchPlanContext{
		PlanID:     req.PlanID,
		PlanStatus: source.Status,
		Branch:     req.Branch,
	})
	if err := guard.Error(); err != nil {
		if source.Status == coreplan.StatusArchived {
			return nil, guardError(apperr.ErrInvalidState, err)
		}
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}

	checkpoints, err := s.checkpointRepo.List(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	phases := make([]primary.PhaseSpec, len(checkpoints))
	for i, cp := range checkpoints {
		phases[i] = primary.PhaseSpec{Name: cp.Phase, TargetCount: cp.TargetCount}
	}

	title := req.Title
	if title == "" {
		title = source.Title
	}
	return s.create(ctx, &secondary.PlanRecord{
		ProjectRef:    source.ProjectRef,
		PrimaryBranch: strings.TrimSpace(req.Branch),
		Title:         title,
		Template:      source.Template,
		SourcePlanID:  source.ID,
	}, phases)
}

// DeletePlan deletes a plan and everything it owns.
func (s *PlanServiceImpl) DeletePlan(ctx context.Context, req primary.DeletePlanRequest) error {
	if _, err := s.planRepo.GetByID(ctx, req.PlanID); err != nil {
		return err
	}
	checkpoints, err := s.checkpointRepo.List(ctx, req.PlanID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	locked := 0
	for _, cp := range checkpoints {
		if cp.Locked() {
			locked++
		}
	}
	guard := coreplan.CanDeletePlan(coreplan.DeletePlanContext{
		PlanID:      req.PlanID,
		LockedCount: locked,
		Force:       req.Force,
	})
	if err := guard.Error(); err != nil {
		return guardError(apperr.ErrLockHeld, err)
	}

	if err := s.planRepo.Delete(ctx, req.PlanID); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	log.Info("plan deleted", "plan", req.PlanID, "forced", req.Force && locked > 0)
	return nil
}

// GetPlanStatus reports checkpoints, backlog counts and open obligations.
func (s *PlanServiceImpl) GetPlanStatus(ctx context.Context, planID string) (*primary.PlanStatus, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	checkpoints, err := s.checkpointRepo.List(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	summary, err := summarizeBacklog(ctx, s.backlogRepo, planID, "")
	if err != nil {
		return nil, err
	}
	open, err := s.obligationRepo.CountOpen(ctx, planID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count open obligations: %w", err)
	}

	return &primary.PlanStatus{
		Plan:            recordToPlan(plan),
		Checkpoints:     recordsToCheckpoints(checkpoints),
		Backlog:         *summary,
		OpenObligations: open,
	}, nil
}

// GetRoster lists the plan's characters and lore requirements.
func (s *PlanServiceImpl) GetRoster(ctx context.Context, planID string) (*primary.Roster, error) {
	if _, err := s.planRepo.GetByID(ctx, planID); err != nil {
		return nil, err
	}
	characters, err := s.rosterRepo.ListCharacters(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	lore, err := s.rosterRepo.ListLoreRequirements(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lore requirements: %w", err)
	}

	roster := &primary.Roster{
		Characters:       make([]*primary.Character, len(characters)),
		LoreRequirements: make([]*primary.LoreRequirement, len(lore)),
	}
	for i, c := range characters {
		roster.Characters[i] = s.toCharacter(ctx, c)
	}
	for i, l := range lore {
		roster.LoreRequirements[i] = toLoreRequirement(l)
	}
	return roster, nil
}

// AddCharacter places a persona in the plan's cast.
func (s *PlanServiceImpl) AddCharacter(ctx context.Context, req primary.AddCharacterRequest) (*primary.Character, error) {
	if req.PersonaID == "" {
		return nil, fmt.Errorf("%w: persona id is required", apperr.ErrInvalidArgument)
	}
	if _, err := s.planRepo.GetByID(ctx, req.PlanID); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = resolvePersonaName(ctx, s.personas, req.PersonaID)
	}
	record := &secondary.CharacterRecord{
		ID:        ids.New(ids.Character),
		PlanID:    req.PlanID,
		PersonaID: req.PersonaID,
		Name:      name,
		Role:      req.Role,
		CreatedAt: s.now(),
	}
	if err := s.rosterRepo.AddCharacter(ctx, record); err != nil {
		return nil, err
	}
	return s.toCharacter(ctx, record), nil
}

// AddLoreRequirement records a world-bible entry the plan depends on,
// creating the entry's slot when it does not exist yet.
func (s *PlanServiceImpl) AddLoreRequirement(ctx context.Context, req primary.AddLoreRequirementRequest) (*primary.LoreRequirement, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("%w: lore topic is required", apperr.ErrInvalidArgument)
	}
	if _, err := s.planRepo.GetByID(ctx, req.PlanID); err != nil {
		return nil, err
	}

	now := s.now()
	slot, err := s.contentRepo.FindSlot(ctx, req.PlanID, corecontent.KindWorldBibleEntry, req.Topic)
	if errors.Is(err, apperr.ErrSlotNotFound) {
		slot = &secondary.SlotRecord{
			ID:        ids.New(ids.Slot),
			PlanID:    req.PlanID,
			Kind:      corecontent.KindWorldBibleEntry,
			Key:       req.Topic,
			CreatedAt: now,
		}
		err = s.contentRepo.CreateSlot(ctx, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prepare world-bible slot: %w", err)
	}

	record := &secondary.LoreRequirementRecord{
		ID:          ids.New(ids.Lore),
		PlanID:      req.PlanID,
		Topic:       req.Topic,
		Description: req.Description,
		SlotID:      slot.ID,
		CreatedAt:   now,
	}
	if err := s.rosterRepo.AddLoreRequirement(ctx, record); err != nil {
		return nil, err
	}

	active, err := s.contentRepo.GetActive(ctx, slot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check world-bible entry: %w", err)
	}
	record.Satisfied = active != nil
	return toLoreRequirement(record), nil
}

func (s *PlanServiceImpl) toCharacter(ctx context.Context, c *secondary.CharacterRecord) *primary.Character {
	character := &primary.Character{
		ID:          c.ID,
		PlanID:      c.PlanID,
		PersonaID:   c.PersonaID,
		Name:        c.Name,
		DisplayName: c.Name,
		Role:        c.Role,
	}
	if s.personas == nil {
		return character
	}
	if p, err := s.personas.Lookup(ctx, c.PersonaID); err == nil {
		if p.DisplayName != "" {
			character.DisplayName = p.DisplayName
		}
		character.Voice = p.Voice
	}
	return character
}

func toLoreRequirement(l *secondary.LoreRequirementRecord) *primary.LoreRequirement {
	return &primary.LoreRequirement{
		ID:          l.ID,
		PlanID:      l.PlanID,
		Topic:       l.Topic,
		Description: l.Description,
		SlotID:      l.SlotID,
		Satisfied:   l.Satisfied,
	}
}

// Ensure PlanServiceImpl implements the interface
var _ primary.PlanService = (*PlanServiceImpl)(nil)
