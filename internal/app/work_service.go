package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/quill/internal/apperr"
	corebacklog "github.com/example/quill/internal/core/backlog"
	corecheckpoint "github.com/example/quill/internal/core/checkpoint"
	coretranscript "github.com/example/quill/internal/core/transcript"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// WorkConfig holds runner and pool policy.
type WorkConfig struct {
	// MaxAttempts is the per-item generation budget.
	MaxAttempts int
	// Workers is the default pool size.
	Workers int
	// MaxItems bounds runs per phase in a pool; 0 means unbounded.
	MaxItems   int
	ProviderID string
	ModelID    string
	// Retry bounds retries of backlog writes that hit a busy database.
	Retry RetryPolicy
}

// WorkServiceImpl runs phase work: it drives one backlog item at a time
// through generation while holding the phase lock.
type WorkServiceImpl struct {
	checkpoints primary.CheckpointService
	backlog     primary.BacklogService
	content     primary.ContentService
	transcripts primary.TranscriptService
	obligations primary.ObligationService
	generator   secondary.Generator
	config      WorkConfig
}

// NewWorkService creates a new WorkService with injected dependencies.
func NewWorkService(
	checkpoints primary.CheckpointService,
	backlog primary.BacklogService,
	content primary.ContentService,
	transcripts primary.TranscriptService,
	obligations primary.ObligationService,
	generator secondary.Generator,
	config WorkConfig,
) *WorkServiceImpl {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &WorkServiceImpl{
		checkpoints: checkpoints,
		backlog:     backlog,
		content:     content,
		transcripts: transcripts,
		obligations: obligations,
		generator:   generator,
		config:      config,
	}
}

// RunOnce locks the phase, processes at most one item and releases.
func (s *WorkServiceImpl) RunOnce(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", apperr.ErrInvalidArgument)
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = ids.New(ids.Conversation)
	}

	result := &primary.RunResult{}
	cp, err := s.checkpoints.WithLock(ctx, primary.AcquireLockRequest{
		PlanID:         req.PlanID,
		Phase:          req.Phase,
		AgentID:        req.AgentID,
		ConversationID: conversationID,
	}, func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
		claim := primary.ClaimRequest{
			PlanID: req.PlanID,
			Phase:  req.Phase,
			Execution: primary.ExecutionContext{
				ConversationID: conversationID,
				TaskID:         ids.New(ids.Task),
				ProviderID:     s.config.ProviderID,
				ModelID:        s.config.ModelID,
			},
		}
		item, err := retryBusy(ctx, s.config.Retry, "claim backlog item", func() (*primary.BacklogItem, error) {
			return s.backlog.ClaimNext(ctx, claim)
		})
		if errors.Is(err, apperr.ErrNoWorkAvailable) {
			result.Idle = true
			return s.idleOutcome(ctx, lease)
		}
		if err != nil {
			return primary.ReleaseOutcome{}, err
		}
		return s.process(ctx, req.AgentID, lease.Checkpoint.Phase, item, result)
	})
	result.Checkpoint = cp
	return result, err
}

// ResumeItem re-attaches an interrupted item under the phase lock and
// processes it.
func (s *WorkServiceImpl) ResumeItem(ctx context.Context, req primary.ResumeWorkRequest) (*primary.RunResult, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", apperr.ErrInvalidArgument)
	}
	current, err := s.backlog.GetItem(ctx, req.PlanID, req.BacklogID)
	if err != nil {
		return nil, err
	}
	phase := req.Phase
	if phase == "" {
		phase = current.Phase
	}
	if phase == "" {
		return nil, fmt.Errorf("%w: item %s has no phase; name the phase to resume under", apperr.ErrInvalidArgument, req.BacklogID)
	}

	// Check before locking so a refused resume does not block the phase.
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

	execution := req.Execution
	if execution.ConversationID == "" {
		execution.ConversationID = ids.New(ids.Conversation)
	}
	if execution.TaskID == "" {
		execution.TaskID = ids.New(ids.Task)
	}

	result := &primary.RunResult{}
	cp, err := s.checkpoints.WithLock(ctx, primary.AcquireLockRequest{
		PlanID:         req.PlanID,
		Phase:          phase,
		AgentID:        req.AgentID,
		ConversationID: execution.ConversationID,
	}, func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
		item, err := s.backlog.Resume(ctx, primary.ResumeRequest{
			PlanID:    req.PlanID,
			BacklogID: req.BacklogID,
			Execution: execution,
		})
		if err != nil {
			return primary.ReleaseOutcome{}, err
		}
		return s.process(ctx, req.AgentID, phase, item, result)
	})
	result.Checkpoint = cp
	return result, err
}

// idleOutcome decides how a lock with nothing left to claim is released.
func (s *WorkServiceImpl) idleOutcome(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
	cp := lease.Checkpoint
	summary, err := s.backlog.Summary(ctx, cp.PlanID, cp.Phase)
	if err != nil {
		return primary.ReleaseOutcome{}, err
	}

	exhausted := summary.Failed - summary.Retryable
	switch {
	case summary.Unfinished() == 0:
		if cp.TargetCount != nil && cp.CompletedCount < *cp.TargetCount {
			// More work is expected before the target is reached.
			return primary.ReleaseOutcome{Kind: corecheckpoint.OutcomeReleased}, nil
		}
		return primary.ReleaseOutcome{Kind: corecheckpoint.OutcomeReleased, PhaseComplete: true}, nil
	case exhausted > 0:
		return primary.ReleaseOutcome{
			Kind:   corecheckpoint.OutcomeFailure,
			Reason: fmt.Sprintf("%d backlog item(s) exhausted their retries", exhausted),
		}, nil
	default:
		// Only interrupted items remain; they need a resume.
		return primary.ReleaseOutcome{Kind: corecheckpoint.OutcomeReleased}, nil
	}
}

// process runs one generation attempt for a claimed item and settles it.
func (s *WorkServiceImpl) process(ctx context.Context, agentID, phase string, item *primary.BacklogItem, result *primary.RunResult) (primary.ReleaseOutcome, error) {
	result.Item = item
	target := item.TargetSlotID
	if target == "" {
		target = item.BacklogID
	}

	attempt, err := s.transcripts.NextAttempt(ctx, item.PlanID, phase, target)
	if err != nil {
		return primary.ReleaseOutcome{}, err
	}
	result.Attempt = attempt

	var prior *primary.Version
	if item.TargetSlotID != "" {
		prior, err = s.content.GetActive(ctx, item.TargetSlotID)
		if err != nil && !errors.Is(err, apperr.ErrVersionNotFound) {
			return primary.ReleaseOutcome{}, err
		}
	}

	genReq := secondary.GenerationRequest{
		PlanID:         item.PlanID,
		Phase:          phase,
		BacklogID:      item.BacklogID,
		Description:    item.Description,
		Inputs:         item.Inputs,
		Attempt:        attempt,
		IsRetry:        attempt > 1,
		AgentID:        agentID,
		ConversationID: item.Execution.ConversationID,
		TaskID:         item.Execution.TaskID,
		ProviderID:     item.Execution.ProviderID,
		ModelID:        item.Execution.ModelID,
	}
	if prior != nil {
		genReq.PriorBody = prior.Body
	}

	start := time.Now()
	gen, genErr := s.generator.Generate(ctx, genReq)
	latency := time.Since(start).Milliseconds()
	if genErr != nil {
		if ctx.Err() != nil {
			return primary.ReleaseOutcome{}, fmt.Errorf("generation interrupted: %w", context.Cause(ctx))
		}
		gen = &secondary.GenerationResult{
			Validation:        coretranscript.ValidationError,
			ValidationDetails: genErr.Error(),
		}
	}
	if !coretranscript.ValidStatus(gen.Validation) {
		gen.ValidationDetails = fmt.Sprintf("generator returned unknown validation %q", gen.Validation)
		gen.Validation = coretranscript.ValidationError
	}
	result.Validation = gen.Validation

	if _, err := s.transcripts.RecordAttempt(ctx, primary.RecordAttemptRequest{
		PlanID:            item.PlanID,
		Phase:             phase,
		TargetNodeID:      target,
		AgentID:           agentID,
		ConversationID:    item.Execution.ConversationID,
		Attempt:           attempt,
		RequestPayload:    gen.RequestPayload,
		ResponsePayload:   gen.ResponsePayload,
		PromptTokens:      gen.Usage.PromptTokens,
		CompletionTokens:  gen.Usage.CompletionTokens,
		LatencyMs:         latency,
		ValidationStatus:  gen.Validation,
		ValidationDetails: gen.ValidationDetails,
		IsRetry:           attempt > 1,
	}); err != nil {
		return primary.ReleaseOutcome{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	if coretranscript.IsFailure(gen.Validation) {
		return s.settleFailure(ctx, item, attempt, gen, result)
	}
	return s.settleSuccess(ctx, agentID, phase, item, prior, gen, result)
}

func (s *WorkServiceImpl) settleSuccess(
	ctx context.Context,
	agentID, phase string,
	item *primary.BacklogItem,
	prior *primary.Version,
	gen *secondary.GenerationResult,
	result *primary.RunResult,
) (primary.ReleaseOutcome, error) {
	outputs := gen.Outputs
	if item.TargetSlotID != "" {
		req := primary.CreateVersionRequest{
			SlotID: item.TargetSlotID,
			Body:   gen.Body,
			Metadata: primary.ContentMetadata{
				Title:       gen.Title,
				Summary:     gen.Summary,
				AuthorAgent: agentID,
				BacklogID:   item.BacklogID,
			},
		}
		if prior != nil {
			req.DerivedFromID = prior.ID
		}
		version, err := s.content.CreateVersion(ctx, req)
		if err != nil {
			return primary.ReleaseOutcome{}, err
		}
		if _, err := s.content.Activate(ctx, version.ID); err != nil {
			return primary.ReleaseOutcome{}, err
		}
		result.VersionID = version.ID
		if len(outputs) == 0 {
			outputs = []string{version.ID}
		}
	}

	for _, o := range gen.Obligations {
		_, err := s.obligations.Raise(ctx, primary.RaiseObligationRequest{
			PlanID:          item.PlanID,
			PersonaID:       o.PersonaID,
			Slug:            o.Slug,
			Title:           o.Title,
			SourcePhase:     phase,
			SourceBacklogID: item.BacklogID,
			BranchSlug:      o.BranchSlug,
		})
		if err != nil && !errors.Is(err, apperr.ErrDuplicateObligation) {
			log.Warn("failed to raise obligation", "item", item.BacklogID, "persona", o.PersonaID, "slug", o.Slug, "error", err)
		}
	}

	completed, err := retryBusy(ctx, s.config.Retry, "complete backlog item", func() (*primary.BacklogItem, error) {
		return s.backlog.Complete(ctx, primary.CompleteRequest{
			PlanID:    item.PlanID,
			BacklogID: item.BacklogID,
			Outputs:   outputs,
		})
	})
	if err != nil {
		return primary.ReleaseOutcome{}, err
	}
	result.Item = completed
	log.Info("backlog item complete", "plan", item.PlanID, "phase", phase, "item", item.BacklogID, "attempt", result.Attempt)
	return primary.ReleaseOutcome{Kind: corecheckpoint.OutcomeSuccess}, nil
}

func (s *WorkServiceImpl) settleFailure(
	ctx context.Context,
	item *primary.BacklogItem,
	attempt int,
	gen *secondary.GenerationResult,
	result *primary.RunResult,
) (primary.ReleaseOutcome, error) {
	retryable := corebacklog.RetryableAfterFailure(item.AttemptCount, s.config.MaxAttempts)
	reason := fmt.Sprintf("attempt %d was %s", attempt, gen.Validation)
	if gen.ValidationDetails != "" {
		reason += ": " + gen.ValidationDetails
	}

	failed, err := retryBusy(ctx, s.config.Retry, "fail backlog item", func() (*primary.BacklogItem, error) {
		return s.backlog.Fail(ctx, primary.FailRequest{
			PlanID:    item.PlanID,
			BacklogID: item.BacklogID,
			Reason:    reason,
			Retryable: retryable,
		})
	})
	if err != nil {
		return primary.ReleaseOutcome{}, err
	}
	result.Item = failed

	if !retryable {
		result.ItemError = fmt.Errorf("%w: %s failed %d of %d attempts", apperr.ErrMaxRetriesExceeded,
			item.BacklogID, item.AttemptCount, s.config.MaxAttempts)
	}
	return primary.ReleaseOutcome{
		Kind:   corecheckpoint.OutcomeFailure,
		Reason: fmt.Sprintf("%s: %s", item.BacklogID, reason),
	}, nil
}

// RunPool drains phases concurrently. Each phase is worked by at most one
// runner at a time since the phase lock is exclusive; Workers bounds how
// many phases run at once.
func (s *WorkServiceImpl) RunPool(ctx context.Context, req primary.PoolRequest) (*primary.PoolResult, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", apperr.ErrInvalidArgument)
	}

	phases := req.Phases
	if len(phases) == 0 {
		checkpoints, err := s.checkpoints.ListCheckpoints(ctx, req.PlanID)
		if err != nil {
			return nil, err
		}
		for _, cp := range checkpoints {
			if cp.Status != corecheckpoint.StatusComplete {
				phases = append(phases, cp.Phase)
			}
		}
	}

	workers := req.Workers
	if workers < 1 {
		workers = s.config.Workers
	}
	maxItems := req.MaxItems
	if maxItems < 1 {
		maxItems = s.config.MaxItems
	}

	pool := &poolTally{result: &primary.PoolResult{ItemErrors: make(map[string]error)}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, phase := range phases {
		g.Go(func() error {
			return s.drainPhase(gctx, req.PlanID, phase, req.AgentID, maxItems, pool)
		})
	}
	if err := g.Wait(); err != nil {
		return pool.result, err
	}
	return pool.result, nil
}

func (s *WorkServiceImpl) drainPhase(ctx context.Context, planID, phase, agentID string, maxItems int, pool *poolTally) error {
	for runs := 0; maxItems <= 0 || runs < maxItems; runs++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := s.RunOnce(ctx, primary.RunRequest{PlanID: planID, Phase: phase, AgentID: agentID})
		if err != nil {
			if errors.Is(err, apperr.ErrLockHeld) || errors.Is(err, apperr.ErrInvalidState) {
				log.Info("skipping phase", "plan", planID, "phase", phase, "reason", err)
				pool.skip(phase)
				return nil
			}
			return fmt.Errorf("phase %s: %w", phase, err)
		}

		pool.record(res)
		if res.Idle || (res.Checkpoint != nil && res.Checkpoint.Status == corecheckpoint.StatusComplete) {
			return nil
		}
	}
	return nil
}

type poolTally struct {
	mu     sync.Mutex
	result *primary.PoolResult
}

func (p *poolTally) skip(phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Skipped = append(p.result.Skipped, phase)
}

func (p *poolTally) record(res *primary.RunResult) {
	if res.Item == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Processed++
	switch res.Item.Status {
	case corebacklog.StatusComplete:
		p.result.Completed++
	case corebacklog.StatusFailed:
		p.result.Failed++
	}
	if res.ItemError != nil {
		p.result.ItemErrors[res.Item.BacklogID] = res.ItemError
	}
}

// Ensure WorkServiceImpl implements the interface
var _ primary.WorkService = (*WorkServiceImpl)(nil)
