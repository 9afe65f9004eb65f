package primary

import "context"

// CheckpointService defines the primary port for phase locks and progress.
type CheckpointService interface {
	// AcquireLock takes the (plan, phase) lock. Fails with ErrLockHeld while
	// a fresh lock exists; stale locks are reclaimed.
	AcquireLock(ctx context.Context, req AcquireLockRequest) (*Lease, error)

	// ReleaseLock clears the lock and applies the outcome. Fails with
	// ErrLockStale if the lease was superseded by a reclaim.
	ReleaseLock(ctx context.Context, req ReleaseLockRequest) (*Checkpoint, error)

	// Heartbeat refreshes a held lease so it does not go stale.
	Heartbeat(ctx context.Context, lease *Lease) error

	// WithLock acquires the lock, runs fn, and always releases with the
	// outcome fn returned. A panic or error in fn releases as failure.
	WithLock(ctx context.Context, req AcquireLockRequest, fn LockedFunc) (*Checkpoint, error)

	// GetCheckpoint retrieves the checkpoint for a (plan, phase).
	GetCheckpoint(ctx context.Context, planID, phase string) (*Checkpoint, error)

	// ListCheckpoints lists a plan's checkpoints in phase order.
	ListCheckpoints(ctx context.Context, planID string) ([]*Checkpoint, error)

	// SetTargetCount changes how many successes complete the phase.
	SetTargetCount(ctx context.Context, planID, phase string, target *int) (*Checkpoint, error)
}

// LockedFunc runs while a phase lock is held.
type LockedFunc func(ctx context.Context, lease *Lease) (ReleaseOutcome, error)

// AcquireLockRequest contains parameters for taking a phase lock.
type AcquireLockRequest struct {
	PlanID         string
	Phase          string
	AgentID        string
	ConversationID string
}

// Lease is proof of holding a phase lock.
type Lease struct {
	Checkpoint *Checkpoint
	Epoch      int64
	// PreviousHolder is set when a stale lock was reclaimed.
	PreviousHolder string
}

// ReleaseOutcome says what happened while the lock was held.
type ReleaseOutcome struct {
	// Kind is success, failure or released.
	Kind string
	// PhaseComplete signals completion when the target count is unknown.
	PhaseComplete bool
	// Reason is the blocked diagnostic for failures.
	Reason string
}

// ReleaseLockRequest contains parameters for releasing a phase lock.
type ReleaseLockRequest struct {
	CheckpointID string
	Epoch        int64
	Outcome      ReleaseOutcome
}

// Checkpoint represents a phase checkpoint at the port boundary.
type Checkpoint struct {
	ID                   string
	PlanID               string
	Phase                string
	Position             int
	Status               string
	CompletedCount       int
	TargetCount          *int
	LockedByAgent        string
	LockedByConversation string
	LockedAt             string
	LockEpoch            int64
	BlockedReason        string
	CreatedAt            string
	UpdatedAt            string
	CompletedAt          string
}
