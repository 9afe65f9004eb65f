package primary

import "context"

// WorkService defines the primary port for running phase work.
type WorkService interface {
	// RunOnce locks the phase, processes at most one item and releases.
	RunOnce(ctx context.Context, req RunRequest) (*RunResult, error)

	// ResumeItem resumes an interrupted item under the phase lock and
	// processes it.
	ResumeItem(ctx context.Context, req ResumeWorkRequest) (*RunResult, error)

	// RunPool drains phases with concurrent workers. A single item's
	// failure never stops the pool.
	RunPool(ctx context.Context, req PoolRequest) (*PoolResult, error)
}

// RunRequest contains parameters for one locked unit of work.
type RunRequest struct {
	PlanID  string
	Phase   string
	AgentID string
	// ConversationID defaults to a fresh conversation per run.
	ConversationID string
}

// ResumeWorkRequest contains parameters for resuming an item.
type ResumeWorkRequest struct {
	PlanID    string
	BacklogID string
	// Phase defaults to the item's phase; phase-less items need one.
	Phase     string
	AgentID   string
	Execution ExecutionContext
}

// RunResult reports what one run did.
type RunResult struct {
	Checkpoint *Checkpoint
	Item       *BacklogItem // nil when no work was claimed
	Attempt    int
	Validation string
	VersionID  string
	// Idle is set when no work was available for the phase.
	Idle bool
	// ItemError is an item-fatal error (e.g. max retries exceeded).
	ItemError error
}

// PoolRequest contains parameters for a worker pool run.
type PoolRequest struct {
	PlanID  string
	Phases  []string // defaults to every phase of the plan
	Workers int
	// MaxItems bounds runs per phase; 0 uses the configured default.
	MaxItems int
	AgentID  string
}

// PoolResult summarizes a pool run.
type PoolResult struct {
	Processed int
	Completed int
	Failed    int
	// Skipped lists phases that were locked by someone else or already complete.
	Skipped []string
	// ItemErrors are item-fatal errors, keyed by backlog id.
	ItemErrors map[string]error
}
