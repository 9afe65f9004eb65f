package app

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/example/quill/internal/agent"
	"github.com/example/quill/internal/apperr"
	coretranscript "github.com/example/quill/internal/core/transcript"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// TranscriptServiceImpl implements the TranscriptService interface.
type TranscriptServiceImpl struct {
	transcriptRepo secondary.TranscriptRepository
	now            func() time.Time
}

// NewTranscriptService creates a new TranscriptService with injected dependencies.
func NewTranscriptService(transcriptRepo secondary.TranscriptRepository) *TranscriptServiceImpl {
	return &TranscriptServiceImpl{
		transcriptRepo: transcriptRepo,
		now:            time.Now,
	}
}

// RecordAttempt appends an attempt to the log.
func (s *TranscriptServiceImpl) RecordAttempt(ctx context.Context, req primary.RecordAttemptRequest) (*primary.TranscriptEntry, error) {
	last, err := s.transcriptRepo.MaxAttempt(ctx, req.PlanID, req.Phase, req.TargetNodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last attempt: %w", err)
	}

	guard := coretranscript.CanRecordAttempt(coretranscript.RecordAttemptContext{
		Phase:            req.Phase,
		AgentID:          req.AgentID,
		Attempt:          req.Attempt,
		LastAttempt:      last,
		ValidationStatus: req.ValidationStatus,
	})
	if err := guard.Error(); err != nil {
		if req.Attempt >= 1 && req.Attempt <= last {
			return nil, guardError(apperr.ErrAttemptOutOfOrder, err)
		}
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}

	record := &secondary.TranscriptEntryRecord{
		ID:                ids.New(ids.Transcript),
		PlanID:            req.PlanID,
		Phase:             req.Phase,
		TargetNodeID:      req.TargetNodeID,
		Attempt:           req.Attempt,
		AgentID:           req.AgentID,
		ConversationID:    req.ConversationID,
		RequestPayload:    req.RequestPayload,
		ResponsePayload:   req.ResponsePayload,
		PromptTokens:      req.PromptTokens,
		CompletionTokens:  req.CompletionTokens,
		LatencyMs:         req.LatencyMs,
		ValidationStatus:  req.ValidationStatus,
		ValidationDetails: req.ValidationDetails,
		IsRetry:           req.IsRetry || req.Attempt > 1,
		CreatedAt:         s.now(),
	}
	if err := s.transcriptRepo.Append(ctx, record); err != nil {
		return nil, err
	}
	return recordToTranscriptEntry(record), nil
}

// QueryHistory streams matching entries in recorded order. Every range
// re-reads the log.
func (s *TranscriptServiceImpl) QueryHistory(ctx context.Context, q primary.HistoryQuery) iter.Seq2[*primary.TranscriptEntry, error] {
	entries := s.transcriptRepo.Entries(ctx, secondary.TranscriptFilters{
		PlanID:       q.PlanID,
		Phase:        q.Phase,
		TargetNodeID: q.TargetNodeID,
	})
	return func(yield func(*primary.TranscriptEntry, error) bool) {
		for record, err := range entries {
			if err != nil {
				yield(nil, fmt.Errorf("failed to read transcript: %w", err))
				return
			}
			entry := recordToTranscriptEntry(record)
			entry.AgentName = agentName(record.AgentID)
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// NextAttempt returns the attempt number the next recording should use.
func (s *TranscriptServiceImpl) NextAttempt(ctx context.Context, planID, phase, targetNodeID string) (int, error) {
	last, err := s.transcriptRepo.MaxAttempt(ctx, planID, phase, targetNodeID)
	if err != nil {
		return 0, fmt.Errorf("failed to read last attempt: %w", err)
	}
	return last + 1, nil
}

// agentName is the short display form of an agent id; unparseable ids are
// shown as recorded.
func agentName(agentID string) string {
	identity, err := agent.ParseAgentID(agentID)
	if err != nil {
		return agentID
	}
	if identity.Type == agent.AgentTypeOperator {
		return "operator"
	}
	return identity.ID
}

// Ensure TranscriptServiceImpl implements the interface
var _ primary.TranscriptService = (*TranscriptServiceImpl)(nil)
