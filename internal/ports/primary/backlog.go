package primary

import "context"

// BacklogService defines the primary port for the per-plan work queue.
type BacklogService interface {
	// Enqueue adds an item. Fails with ErrDuplicateBacklogID on key collision.
	Enqueue(ctx context.Context, req EnqueueRequest) (*BacklogItem, error)

	// ClaimNext hands out the oldest pending item (then the oldest retryable
	// failed item). Fails with ErrNoWorkAvailable.
	ClaimNext(ctx context.Context, req ClaimRequest) (*BacklogItem, error)

	// Resume re-attaches an in_progress or failed item to a new execution
	// context. Fails with ErrMissingResumeMetadata without prior linkage.
	Resume(ctx context.Context, req ResumeRequest) (*BacklogItem, error)

	// Complete moves an in_progress item to complete.
	Complete(ctx context.Context, req CompleteRequest) (*BacklogItem, error)

	// Fail moves an in_progress item to failed.
	Fail(ctx context.Context, req FailRequest) (*BacklogItem, error)

	// Requeue moves a failed item back to pending.
	Requeue(ctx context.Context, planID, backlogID string) (*BacklogItem, error)

	// GetItem retrieves one item.
	GetItem(ctx context.Context, planID, backlogID string) (*BacklogItem, error)

	// ListBacklog lists items in queue order.
	ListBacklog(ctx context.Context, filters BacklogFilters) ([]*BacklogItem, error)

	// History lists an item's recorded transitions, oldest first.
	History(ctx context.Context, planID, backlogID string) ([]*LogEntry, error)

	// Summary tallies items by status.
	Summary(ctx context.Context, planID, phase string) (*BacklogSummary, error)
}

// ExecutionContext links an item to the conversation working on it.
type ExecutionContext struct {
	ConversationID     string
	ConversationPlanID string
	TaskID             string
	ProviderID         string
	ModelID            string
}

// EnqueueRequest contains parameters for enqueueing an item.
type EnqueueRequest struct {
	PlanID       string
	BacklogID    string
	Description  string
	Inputs       []string
	Phase        string // optional
	TargetSlotID string // optional content slot the item produces
}

// ClaimRequest contains parameters for claiming work.
type ClaimRequest struct {
	PlanID        string
	Phase         string // optional
	Execution     ExecutionContext
	SkipRetryable bool // only claim pending items
}

// ResumeRequest contains parameters for resuming an item.
type ResumeRequest struct {
	PlanID    string
	BacklogID string
	Execution ExecutionContext
}

// CompleteRequest contains parameters for completing an item.
type CompleteRequest struct {
	PlanID    string
	BacklogID string
	Outputs   []string
}

// FailRequest contains parameters for failing an item.
type FailRequest struct {
	PlanID    string
	BacklogID string
	Reason    string
	Retryable bool
}

// BacklogFilters contains filter options for listing items.
type BacklogFilters struct {
	PlanID string
	Phase  string
	Status string
}

// BacklogItem represents a backlog item at the port boundary.
type BacklogItem struct {
	ID            string
	PlanID        string
	BacklogID     string
	Phase         string
	TargetSlotID  string
	Description   string
	Inputs        []string
	Outputs       []string
	Status        string
	Retryable     bool
	FailureReason string
	AttemptCount  int
	Execution     ExecutionContext
	CreatedAt     string
	InProgressAt  string
	CompletedAt   string
	FailedAt      string
}

// BacklogSummary tallies items by status.
type BacklogSummary struct {
	Pending    int
	InProgress int
	Complete   int
	Failed     int
	Retryable  int
}

// Total returns the number of items counted.
func (s BacklogSummary) Total() int {
	return s.Pending + s.InProgress + s.Complete + s.Failed
}

// Unfinished returns the number of items not yet complete.
func (s BacklogSummary) Unfinished() int {
	return s.Pending + s.InProgress + s.Failed
}
