package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/quill/internal/apperr"
	corecheckpoint "github.com/example/quill/internal/core/checkpoint"
	coreplan "github.com/example/quill/internal/core/plan"
	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// CheckpointConfig holds lock and gate policy for the checkpoint service.
type CheckpointConfig struct {
	// LockTimeout is how long a lock may go without a heartbeat before
	// another worker may reclaim it.
	LockTimeout time.Duration
	// HeartbeatInterval is how often WithLock refreshes its lease; 0 disables.
	HeartbeatInterval time.Duration
	// RequireObligationsClear blocks phase completion while obligations
	// raised in the phase are still open.
	RequireObligationsClear bool
	// Retry bounds WithLock's wait for a held lock.
	Retry RetryPolicy
}

// CheckpointServiceImpl implements the CheckpointService interface.
type CheckpointServiceImpl struct {
	checkpointRepo secondary.CheckpointRepository
	planRepo       secondary.PlanRepository
	obligationRepo secondary.ObligationRepository
	config         CheckpointConfig
	now            func() time.Time
}

// NewCheckpointService creates a new CheckpointService with injected dependencies.
func NewCheckpointService(
	checkpointRepo secondary.CheckpointRepository,
	planRepo secondary.PlanRepository,
	obligationRepo secondary.ObligationRepository,
	config CheckpointConfig,
) *CheckpointServiceImpl {
	return &CheckpointServiceImpl{
		checkpointRepo: checkpointRepo,
		planRepo:       planRepo,
		obligationRepo: obligationRepo,
		config:         config,
		now:            time.Now,
	}
}

// AcquireLock takes the (plan, phase) lock.
func (s *CheckpointServiceImpl) AcquireLock(ctx context.Context, req primary.AcquireLockRequest) (*primary.Lease, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", apperr.ErrInvalidArgument)
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = ctxutil.ConversationFromContext(ctx)
	}
	if conversationID == "" {
		conversationID = ids.New(ids.Conversation)
	}

	current, err := s.checkpointRepo.GetByPhase(ctx, req.PlanID, req.Phase)
	if err != nil {
		return nil, err
	}

	now := s.now()
	guard := corecheckpoint.CanAcquireLock(corecheckpoint.AcquireLockContext{
		Phase:        req.Phase,
		Status:       current.Status,
		LockedBy:     current.LockedByAgent,
		LockedAt:     current.LockedAt,
		Now:          now,
		StaleTimeout: s.config.LockTimeout,
	})
	if !guard.Allowed {
		if current.Status == corecheckpoint.StatusComplete {
			return nil, guardError(apperr.ErrInvalidState, guard.Error())
		}
		return nil, guardError(apperr.ErrLockHeld, guard.Error())
	}

	record, err := s.checkpointRepo.AcquireLock(ctx, secondary.AcquireLockParams{
		PlanID:         req.PlanID,
		Phase:          req.Phase,
		AgentID:        req.AgentID,
		ConversationID: conversationID,
		Now:            now,
		StaleBefore:    now.Add(-s.config.LockTimeout),
	})
	if err != nil {
		return nil, err
	}

	lease := &primary.Lease{
		Checkpoint: recordToCheckpoint(record),
		Epoch:      record.LockEpoch,
	}
	if current.Locked() {
		lease.PreviousHolder = current.LockedByAgent
		log.Warn("reclaimed stale phase lock",
			"plan", req.PlanID, "phase", req.Phase,
			"previous", current.LockedByAgent, "locked_at", current.LockedAt, "agent", req.AgentID)
	} else {
		log.Debug("acquired phase lock", "plan", req.PlanID, "phase", req.Phase, "agent", req.AgentID, "epoch", record.LockEpoch)
	}

	s.advancePlan(ctx, req.PlanID, coreplan.StatusDraft, coreplan.StatusActive)
	return lease, nil
}

// ReleaseLock clears the lock and applies the outcome.
func (s *CheckpointServiceImpl) ReleaseLock(ctx context.Context, req primary.ReleaseLockRequest) (*primary.Checkpoint, error) {
	current, err := s.checkpointRepo.GetByID(ctx, req.CheckpointID)
	if err != nil {
		return nil, err
	}

	guard := corecheckpoint.CanReleaseLock(corecheckpoint.ReleaseLockContext{
		CheckpointID: req.CheckpointID,
		Locked:       current.Locked(),
		LeaseEpoch:   req.Epoch,
		CurrentEpoch: current.LockEpoch,
		Outcome:      req.Outcome.Kind,
	})
	if !guard.Allowed {
		if current.Locked() && current.LockEpoch == req.Epoch {
			return nil, guardError(apperr.ErrInvalidArgument, guard.Error())
		}
		return nil, guardError(apperr.ErrLockStale, guard.Error())
	}

	increment := 0
	if req.Outcome.Kind == corecheckpoint.OutcomeSuccess {
		increment = 1
	}
	completed := current.CompletedCount + increment
	if current.TargetCount != nil && completed > *current.TargetCount {
		completed = *current.TargetCount
	}

	open := 0
	if s.config.RequireObligationsClear {
		open, err = s.obligationRepo.CountOpen(ctx, current.PlanID, current.Phase)
		if err != nil {
			return nil, fmt.Errorf("failed to count open obligations: %w", err)
		}
	}

	decision := corecheckpoint.DecideRelease(corecheckpoint.ReleaseDecisionContext{
		Outcome:                 req.Outcome.Kind,
		PhaseComplete:           req.Outcome.PhaseComplete,
		CompletedCount:          completed,
		TargetCount:             current.TargetCount,
		FailureReason:           req.Outcome.Reason,
		RequireObligationsClear: s.config.RequireObligationsClear,
		OpenObligations:         open,
	})

	record, err := s.checkpointRepo.ReleaseLock(ctx, secondary.ReleaseLockParams{
		CheckpointID:  req.CheckpointID,
		Epoch:         req.Epoch,
		Increment:     increment,
		Status:        decision.Status,
		BlockedReason: decision.BlockedReason,
		Now:           s.now(),
	})
	if err != nil {
		return nil, err
	}

	log.Debug("released phase lock",
		"plan", record.PlanID, "phase", record.Phase, "outcome", req.Outcome.Kind,
		"status", record.Status, "completed", record.CompletedCount)
	if record.Status == corecheckpoint.StatusBlocked {
		log.Warn("phase blocked", "plan", record.PlanID, "phase", record.Phase, "reason", record.BlockedReason)
	}

	if record.Status == corecheckpoint.StatusComplete {
		s.completePlanIfDone(ctx, record.PlanID)
	}
	return recordToCheckpoint(record), nil
}

// Heartbeat refreshes a held lease.
func (s *CheckpointServiceImpl) Heartbeat(ctx context.Context, lease *primary.Lease) error {
	return s.checkpointRepo.Heartbeat(ctx, lease.Checkpoint.ID, lease.Epoch, s.now())
}

// WithLock acquires the phase lock, runs fn and releases with fn's outcome.
// An fn error or panic releases as failure; a panic is re-raised after the
// release.
func (s *CheckpointServiceImpl) WithLock(ctx context.Context, req primary.AcquireLockRequest, fn primary.LockedFunc) (*primary.Checkpoint, error) {
	lease, err := retryBusy(ctx, s.config.Retry, "acquire lock", func() (*primary.Lease, error) {
		return s.AcquireLock(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	if s.config.HeartbeatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.keepAlive(runCtx, cancel, lease)
		}()
	}

	outcome, recovered, fnErr := runLocked(runCtx, lease, fn)
	cancel(nil)
	wg.Wait()

	switch {
	case recovered != nil:
		outcome = primary.ReleaseOutcome{Kind: corecheckpoint.OutcomeFailure, Reason: fmt.Sprintf("panic: %v", recovered)}
	case fnErr != nil:
		outcome = primary.ReleaseOutcome{Kind: corecheckpoint.OutcomeFailure, Reason: fnErr.Error()}
	case outcome.Kind == "":
		outcome.Kind = corecheckpoint.OutcomeReleased
	}

	cp, releaseErr := s.ReleaseLock(context.WithoutCancel(ctx), primary.ReleaseLockRequest{
		CheckpointID: lease.Checkpoint.ID,
		Epoch:        lease.Epoch,
		Outcome:      outcome,
	})
	if releaseErr != nil {
		releaseErr = fmt.Errorf("failed to release lock: %w", releaseErr)
	}

	if recovered != nil {
		panic(recovered)
	}
	return cp, errors.Join(fnErr, releaseErr)
}

func runLocked(ctx context.Context, lease *primary.Lease, fn primary.LockedFunc) (outcome primary.ReleaseOutcome, recovered any, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
		}
	}()
	outcome, err = fn(ctx, lease)
	return outcome, nil, err
}

// keepAlive heartbeats until ctx ends. Losing the lease cancels the run.
func (s *CheckpointServiceImpl) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, lease *primary.Lease) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Heartbeat(ctx, lease)
			if err == nil {
				continue
			}
			if errors.Is(err, apperr.ErrLockStale) {
				log.Warn("phase lock lost", "checkpoint", lease.Checkpoint.ID, "epoch", lease.Epoch)
				cancel(err)
				return
			}
			if ctx.Err() == nil {
				log.Debug("heartbeat failed", "checkpoint", lease.Checkpoint.ID, "error", err)
			}
		}
	}
}

// GetCheckpoint retrieves the checkpoint for a (plan, phase).
func (s *CheckpointServiceImpl) GetCheckpoint(ctx context.Context, planID, phase string) (*primary.Checkpoint, error) {
	record, err := s.checkpointRepo.GetByPhase(ctx, planID, phase)
	if err != nil {
		return nil, err
	}
	return recordToCheckpoint(record), nil
}

// ListCheckpoints lists a plan's checkpoints in phase order.
func (s *CheckpointServiceImpl) ListCheckpoints(ctx context.Context, planID string) ([]*primary.Checkpoint, error) {
	if _, err := s.planRepo.GetByID(ctx, planID); err != nil {
		return nil, err
	}
	records, err := s.checkpointRepo.List(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return recordsToCheckpoints(records), nil
}

// SetTargetCount changes how many successes complete the phase.
func (s *CheckpointServiceImpl) SetTargetCount(ctx context.Context, planID, phase string, target *int) (*primary.Checkpoint, error) {
	current, err := s.checkpointRepo.GetByPhase(ctx, planID, phase)
	if err != nil {
		return nil, err
	}

	guard := corecheckpoint.CanSetTargetCount(current.Status, current.CompletedCount, target)
	if !guard.Allowed {
		if current.Status == corecheckpoint.StatusComplete {
			return nil, guardError(apperr.ErrInvalidState, guard.Error())
		}
		return nil, guardError(apperr.ErrInvalidArgument, guard.Error())
	}

	if err := s.checkpointRepo.SetTargetCount(ctx, current.ID, target, s.now()); err != nil {
		return nil, fmt.Errorf("failed to set target count: %w", err)
	}
	return s.GetCheckpoint(ctx, planID, phase)
}

// completePlanIfDone marks the plan completed once every phase is complete.
func (s *CheckpointServiceImpl) completePlanIfDone(ctx context.Context, planID string) {
	records, err := s.checkpointRepo.List(ctx, planID)
	if err != nil {
		log.Warn("failed to check plan completion", "plan", planID, "error", err)
		return
	}
	for _, r := range records {
		if r.Status != corecheckpoint.StatusComplete {
			return
		}
	}
	s.advancePlan(ctx, planID, coreplan.StatusActive, coreplan.StatusCompleted)
}

// advancePlan is best-effort: a plan already moved on by someone else, or
// one that is not in from, is left alone.
func (s *CheckpointServiceImpl) advancePlan(ctx context.Context, planID, from, to string) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		log.Warn("failed to load plan", "plan", planID, "error", err)
		return
	}
	if plan.Status != from {
		return
	}
	err = s.planRepo.UpdateStatus(ctx, planID, from, to, s.now())
	switch {
	case err == nil:
		log.Info("plan status changed", "plan", planID, "from", from, "to", to)
	case errors.Is(err, apperr.ErrPersistenceConflict):
	default:
		log.Warn("failed to update plan status", "plan", planID, "to", to, "error", err)
	}
}

// Ensure CheckpointServiceImpl implements the interface
var _ primary.CheckpointService = (*CheckpointServiceImpl)(nil)
