package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/quill/internal/apperr"
	corebacklog "github.com/example/quill/internal/core/backlog"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// BacklogServiceImpl implements the BacklogService interface.
type BacklogServiceImpl struct {
	backlogRepo secondary.BacklogRepository
	planRepo    secondary.PlanRepository
	logRepo     secondary.AuditLogRepository
	now         func() time.Time
}

// NewBacklogService creates a new BacklogService with injected dependencies.
func NewBacklogService(
	backlogRepo secondary.BacklogRepository,
	planRepo secondary.PlanRepository,
	logRepo secondary.AuditLogRepository,
) *BacklogServiceImpl {
	return &BacklogServiceImpl{
		backlogRepo: backlogRepo,
		planRepo:    planRepo,
		logRepo:     logRepo,
		now:         time.Now,
	}
}

// Enqueue adds an item to the plan's queue.
func (s *BacklogServiceImpl) Enqueue(ctx context.Context, req primary.EnqueueRequest) (*primary.BacklogItem, error) {
	guard := corebacklog.CanEnqueue(corebacklog.EnqueueContext{
		BacklogID:   req.BacklogID,
		Description: req.Description,
	})
	if err := guard.Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}

	if _, err := s.planRepo.GetByID(ctx, req.PlanID); err != nil {
		return nil, err
	}

	record := &secondary.BacklogItemRecord{
		ID:           ids.New(ids.BacklogItem),
		PlanID:       req.PlanID,
		BacklogID:    req.BacklogID,
		Phase:        req.Phase,
		TargetSlotID: req.TargetSlotID,
		Description:  req.Description,
		Inputs:       req.Inputs,
		Status:       corebacklog.StatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.backlogRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", req.BacklogID, err)
	}
	return recordToBacklogItem(record), nil
}

// ClaimNext hands out the oldest eligible item.
func (s *BacklogServiceImpl) ClaimNext(ctx context.Context, req primary.ClaimRequest) (*primary.BacklogItem, error) {
	record, err := s.backlogRepo.ClaimNext(ctx, secondary.ClaimParams{
		PlanID:           req.PlanID,
		Phase:            req.Phase,
		IncludeRetryable: !req.SkipRetryable,
		Execution:        executionToRecord(req.Execution),
		Now:              s.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Debug("claimed backlog item", "plan", req.PlanID, "item", record.BacklogID, "attempts", record.AttemptCount)
	return recordToBacklogItem(record), nil
}

// Resume re-attaches an interrupted item to a new execution context.
func (s *BacklogServiceImpl) Resume(ctx context.Context, req primary.ResumeRequest) (*primary.BacklogItem, error) {
	current, err := s.backlogRepo.Get(ctx, req.PlanID, req.BacklogID)
	if err != nil {
		return nil, err
	}

	resumeCtx := corebacklog.ResumeContext{
		BacklogID:      current.BacklogID,
		Status:         current.Status,
		ConversationID: current.Execution.ConversationID,
		TaskID:         current.Execution.TaskID,
	}
	if err := corebacklog.CanResume(resumeCtx).Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidTransition, err)
	}
	if err := corebacklog.HasResumeMetadata(resumeCtx).Error(); err != nil {
		return nil, guardError(apperr.ErrMissingResumeMetadata, err)
	}

	record, err := s.backlogRepo.Resume(ctx, secondary.ResumeParams{
		PlanID:    req.PlanID,
		BacklogID: req.BacklogID,
		From:      current.Status,
		Execution: executionToRecord(req.Execution),
		Now:       s.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Info("resumed backlog item", "plan", req.PlanID, "item", req.BacklogID, "from", current.Status,
		"conversation", record.Execution.ConversationID)
	return recordToBacklogItem(record), nil
}

// Complete moves an in_progress item to complete.
func (s *BacklogServiceImpl) Complete(ctx context.Context, req primary.CompleteRequest) (*primary.BacklogItem, error) {
	return s.transition(ctx, secondary.TransitionParams{
		PlanID:    req.PlanID,
		BacklogID: req.BacklogID,
		From:      corebacklog.StatusInProgress,
		To:        corebacklog.StatusComplete,
		Outputs:   req.Outputs,
	})
}

// Fail moves an in_progress item to failed.
func (s *BacklogServiceImpl) Fail(ctx context.Context, req primary.FailRequest) (*primary.BacklogItem, error) {
	item, err := s.transition(ctx, secondary.TransitionParams{
		PlanID:        req.PlanID,
		BacklogID:     req.BacklogID,
		From:          corebacklog.StatusInProgress,
		To:            corebacklog.StatusFailed,
		FailureReason: req.Reason,
		Retryable:     req.Retryable,
	})
	if err != nil {
		return nil, err
	}
	log.Warn("backlog item failed", "plan", req.PlanID, "item", req.BacklogID, "retryable", req.Retryable, "reason", req.Reason)
	return item, nil
}

// Requeue moves a failed item back to pending.
func (s *BacklogServiceImpl) Requeue(ctx context.Context, planID, backlogID string) (*primary.BacklogItem, error) {
	return s.transition(ctx, secondary.TransitionParams{
		PlanID:    planID,
		BacklogID: backlogID,
		From:      corebacklog.StatusFailed,
		To:        corebacklog.StatusPending,
	})
}

func (s *BacklogServiceImpl) transition(ctx context.Context, params secondary.TransitionParams) (*primary.BacklogItem, error) {
	if err := corebacklog.CanTransition(params.From, params.To).Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidTransition, err)
	}
	params.Now = s.now()
	record, err := s.backlogRepo.Transition(ctx, params)
	if err != nil {
		return nil, err
	}
	return recordToBacklogItem(record), nil
}

// GetItem retrieves one item.
func (s *BacklogServiceImpl) GetItem(ctx context.Context, planID, backlogID string) (*primary.BacklogItem, error) {
	record, err := s.backlogRepo.Get(ctx, planID, backlogID)
	if err != nil {
		return nil, err
	}
	return recordToBacklogItem(record), nil
}

// ListBacklog lists items in queue order.
func (s *BacklogServiceImpl) ListBacklog(ctx context.Context, filters primary.BacklogFilters) ([]*primary.BacklogItem, error) {
	if filters.Status != "" && !corebacklog.ValidStatus(filters.Status) {
		return nil, fmt.Errorf("%w: unknown backlog status %q", apperr.ErrInvalidArgument, filters.Status)
	}
	records, err := s.backlogRepo.List(ctx, secondary.BacklogFilters{
		PlanID: filters.PlanID,
		Phase:  filters.Phase,
		Status: filters.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog: %w", err)
	}

	items := make([]*primary.BacklogItem, len(records))
	for i, r := range records {
		items[i] = recordToBacklogItem(r)
	}
	return items, nil
}

// History lists the item's audit trail, oldest first.
func (s *BacklogServiceImpl) History(ctx context.Context, planID, backlogID string) ([]*primary.LogEntry, error) {
	if _, err := s.backlogRepo.Get(ctx, planID, backlogID); err != nil {
		return nil, err
	}
	records, err := s.logRepo.List(ctx, secondary.AuditLogFilters{
		PlanID:     planID,
		EntityType: "backlog_item",
		EntityID:   backlogID,
		Ascending:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	entries := make([]*primary.LogEntry, len(records))
	for i, r := range records {
		entries[i] = recordToLogEntry(r)
	}
	return entries, nil
}

// Summary tallies items by status.
func (s *BacklogServiceImpl) Summary(ctx context.Context, planID, phase string) (*primary.BacklogSummary, error) {
	return summarizeBacklog(ctx, s.backlogRepo, planID, phase)
}

func summarizeBacklog(ctx context.Context, repo secondary.BacklogRepository, planID, phase string) (*primary.BacklogSummary, error) {
	counts, err := repo.CountByStatus(ctx, planID, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to count backlog: %w", err)
	}
	retryable, err := repo.CountRetryable(ctx, planID, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to count retryable items: %w", err)
	}
	return &primary.BacklogSummary{
		Pending:    counts[corebacklog.StatusPending],
		InProgress: counts[corebacklog.StatusInProgress],
		Complete:   counts[corebacklog.StatusComplete],
		Failed:     counts[corebacklog.StatusFailed],
		Retryable:  retryable,
	}, nil
}

// Ensure BacklogServiceImpl implements the interface
var _ primary.BacklogService = (*BacklogServiceImpl)(nil)
