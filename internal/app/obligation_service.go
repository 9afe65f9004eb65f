package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/quill/internal/apperr"
	coreobligation "github.com/example/quill/internal/core/obligation"
	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// actionRaise is the history action recorded when an obligation is opened.
const actionRaise = "raise"

// ObligationServiceImpl implements the ObligationService interface.
type ObligationServiceImpl struct {
	obligationRepo secondary.ObligationRepository
	planRepo       secondary.PlanRepository
	personas       secondary.PersonaDirectory
	now            func() time.Time
}

// NewObligationService creates a new ObligationService with injected dependencies.
// personas may be nil, in which case persona ids are shown as names.
func NewObligationService(
	obligationRepo secondary.ObligationRepository,
	planRepo secondary.PlanRepository,
	personas secondary.PersonaDirectory,
) *ObligationServiceImpl {
	return &ObligationServiceImpl{
		obligationRepo: obligationRepo,
		planRepo:       planRepo,
		personas:       personas,
		now:            time.Now,
	}
}

// Raise opens an obligation.
func (s *ObligationServiceImpl) Raise(ctx context.Context, req primary.RaiseObligationRequest) (*primary.Obligation, error) {
	guard := coreobligation.CanRaise(coreobligation.RaiseContext{
		PersonaID:   req.PersonaID,
		Slug:        req.Slug,
		Title:       req.Title,
		SourcePhase: req.SourcePhase,
	})
	if err := guard.Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}

	if _, err := s.planRepo.GetByID(ctx, req.PlanID); err != nil {
		return nil, err
	}

	now := s.now()
	record := &secondary.ObligationRecord{
		ID:              ids.New(ids.Obligation),
		PlanID:          req.PlanID,
		PersonaID:       req.PersonaID,
		Slug:            req.Slug,
		Title:           req.Title,
		SourcePhase:     req.SourcePhase,
		SourceBacklogID: req.SourceBacklogID,
		BranchSlug:      req.BranchSlug,
		Status:          coreobligation.StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.obligationRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	actor := ctxutil.ActorOr(ctx, req.PersonaID)
	if err := s.obligationRepo.AppendNote(ctx, &secondary.ObligationNoteRecord{
		ObligationID: record.ID,
		Actor:        actor,
		Action:       actionRaise,
		Notes:        req.Title,
		CreatedAt:    now,
	}); err != nil {
		log.Warn("failed to record obligation note", "obligation", record.ID, "error", err)
	}

	log.Info("obligation raised", "plan", req.PlanID, "persona", req.PersonaID, "slug", req.Slug)
	return s.GetObligation(ctx, record.ID)
}

// Resolve closes an open obligation as resolved.
func (s *ObligationServiceImpl) Resolve(ctx context.Context, req primary.CloseObligationRequest) (*primary.Obligation, error) {
	return s.close(ctx, coreobligation.ActionResolve, req)
}

// Dismiss closes an open obligation as dismissed.
func (s *ObligationServiceImpl) Dismiss(ctx context.Context, req primary.CloseObligationRequest) (*primary.Obligation, error) {
	req.VoiceDrift = false
	return s.close(ctx, coreobligation.ActionDismiss, req)
}

// ResolveObligation applies action as the context actor.
func (s *ObligationServiceImpl) ResolveObligation(ctx context.Context, req primary.ResolveObligationRequest) (*primary.Obligation, error) {
	closeReq := primary.CloseObligationRequest{
		ObligationID: req.ObligationID,
		Actor:        ctxutil.ActorOr(ctx, "OPERATOR"),
		Notes:        req.Notes,
		VoiceDrift:   req.VoiceDrift,
	}
	switch req.Action {
	case coreobligation.ActionResolve:
		return s.Resolve(ctx, closeReq)
	case coreobligation.ActionDismiss:
		return s.Dismiss(ctx, closeReq)
	default:
		return nil, fmt.Errorf("%w: unknown action %q (expected resolve or dismiss)", apperr.ErrInvalidArgument, req.Action)
	}
}

func (s *ObligationServiceImpl) close(ctx context.Context, action string, req primary.CloseObligationRequest) (*primary.Obligation, error) {
	current, err := s.obligationRepo.GetByID(ctx, req.ObligationID)
	if err != nil {
		return nil, err
	}

	guard := coreobligation.CanClose(coreobligation.CloseContext{
		ObligationID: req.ObligationID,
		Status:       current.Status,
		Action:       action,
		Actor:        req.Actor,
	})
	if err := guard.Error(); err != nil {
		if req.Actor == "" {
			return nil, guardError(apperr.ErrInvalidArgument, err)
		}
		return nil, guardError(apperr.ErrInvalidState, err)
	}

	if _, err := s.obligationRepo.Close(ctx, secondary.CloseObligationParams{
		ID:         req.ObligationID,
		Status:     coreobligation.StatusForAction(action),
		Action:     action,
		Actor:      req.Actor,
		Notes:      req.Notes,
		VoiceDrift: req.VoiceDrift,
		Now:        s.now(),
	}); err != nil {
		return nil, err
	}
	return s.GetObligation(ctx, req.ObligationID)
}

// GetObligation retrieves an obligation with its history.
func (s *ObligationServiceImpl) GetObligation(ctx context.Context, obligationID string) (*primary.Obligation, error) {
	record, err := s.obligationRepo.GetByID(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	notes, err := s.obligationRepo.Notes(ctx, obligationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load obligation history: %w", err)
	}

	o := recordToObligation(record)
	o.PersonaName = s.personaName(ctx, record.PersonaID)
	o.History = make([]*primary.ObligationNote, len(notes))
	for i, n := range notes {
		o.History[i] = &primary.ObligationNote{
			Actor:     n.Actor,
			Action:    n.Action,
			Notes:     n.Notes,
			CreatedAt: formatTime(n.CreatedAt),
		}
	}
	return o, nil
}

// ListObligations lists a plan's obligations.
func (s *ObligationServiceImpl) ListObligations(ctx context.Context, filters primary.ObligationFilters) ([]*primary.Obligation, error) {
	records, err := s.obligationRepo.List(ctx, secondary.ObligationFilters{
		PlanID:    filters.PlanID,
		OpenOnly:  filters.OpenOnly,
		Phase:     filters.Phase,
		PersonaID: filters.PersonaID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}

	names := make(map[string]string)
	obligations := make([]*primary.Obligation, len(records))
	for i, r := range records {
		o := recordToObligation(r)
		name, ok := names[r.PersonaID]
		if !ok {
			name = s.personaName(ctx, r.PersonaID)
			names[r.PersonaID] = name
		}
		o.PersonaName = name
		obligations[i] = o
	}
	return obligations, nil
}

// CountOpen counts open obligations, optionally for one source phase.
func (s *ObligationServiceImpl) CountOpen(ctx context.Context, planID, phase string) (int, error) {
	return s.obligationRepo.CountOpen(ctx, planID, phase)
}

func (s *ObligationServiceImpl) personaName(ctx context.Context, personaID string) string {
	return resolvePersonaName(ctx, s.personas, personaID)
}

// resolvePersonaName falls back to the id for unknown personas or when no
// directory is configured.
func resolvePersonaName(ctx context.Context, personas secondary.PersonaDirectory, personaID string) string {
	if personas == nil {
		return personaID
	}
	p, err := personas.Lookup(ctx, personaID)
	if err != nil || p.DisplayName == "" {
		return personaID
	}
	return p.DisplayName
}

// Ensure ObligationServiceImpl implements the interface
var _ primary.ObligationService = (*ObligationServiceImpl)(nil)
