package primary

import (
	"context"
	"iter"
)

// TranscriptService defines the primary port for the generation attempt log.
type TranscriptService interface {
	// RecordAttempt appends an attempt. Attempts must strictly increase per
	// (plan, phase, target).
	RecordAttempt(ctx context.Context, req RecordAttemptRequest) (*TranscriptEntry, error)

	// QueryHistory returns the entries in recorded order. The sequence is
	// finite and can be ranged over again; each pass re-reads the log.
	QueryHistory(ctx context.Context, q HistoryQuery) iter.Seq2[*TranscriptEntry, error]

	// NextAttempt returns the attempt number the next recording should use.
	NextAttempt(ctx context.Context, planID, phase, targetNodeID string) (int, error)
}

// RecordAttemptRequest contains one generation attempt.
type RecordAttemptRequest struct {
	PlanID            string
	Phase             string
	TargetNodeID      string // optional
	AgentID           string
	ConversationID    string
	Attempt           int
	RequestPayload    string
	ResponsePayload   string
	PromptTokens      int
	CompletionTokens  int
	LatencyMs         int64
	ValidationStatus  string
	ValidationDetails string
	IsRetry           bool
}

// HistoryQuery selects a transcript history.
type HistoryQuery struct {
	PlanID string
	Phase  string
	// TargetNodeID narrows to one target when non-nil.
	TargetNodeID *string
}

// TranscriptEntry represents a logged attempt at the port boundary.
type TranscriptEntry struct {
	ID                string
	PlanID            string
	Phase             string
	TargetNodeID      string
	Attempt           int
	AgentID           string
	AgentName         string
	ConversationID    string
	RequestPayload    string
	ResponsePayload   string
	PromptTokens      int
	CompletionTokens  int
	LatencyMs         int64
	ValidationStatus  string
	ValidationDetails string
	IsRetry           bool
	CreatedAt         string
}
