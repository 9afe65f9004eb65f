// Package checkpoint contains the pure business logic for phase checkpoints.
// Guards are pure functions that evaluate preconditions without side effects.
package checkpoint

import (
	"fmt"
	"time"
)

// Checkpoint statuses.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusComplete   = "complete"
)

// Release outcomes.
const (
	// OutcomeSuccess records one unit of progress.
	OutcomeSuccess = "success"
	// OutcomeFailure blocks the phase with a diagnostic.
	OutcomeFailure = "failure"
	// OutcomeReleased gives the lock back without recording progress.
	OutcomeReleased = "released"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// AcquireLockContext provides context for lock acquisition guards.
type AcquireLockContext struct {
	Phase        string
	Status       string
	LockedBy     string    // empty if unlocked
	LockedAt     time.Time // zero if unlocked
	Now          time.Time
	StaleTimeout time.Duration
}

// ReleaseLockContext provides context for lock release guards.
type ReleaseLockContext struct {
	CheckpointID string
	Locked       bool
	LeaseEpoch   int64
	CurrentEpoch int64
	Outcome      string
}

// ReleaseDecisionContext carries what is known at release time.
type ReleaseDecisionContext struct {
	Outcome        string
	PhaseComplete  bool
	CompletedCount int  // after this release
	TargetCount    *int // nil when unknown
	FailureReason  string

	// Obligation gate; OpenObligations is ignored unless the gate is on.
	RequireObligationsClear bool
	OpenObligations         int
}

// ReleaseDecision is the checkpoint state a release should leave behind.
type ReleaseDecision struct {
	Status        string
	BlockedReason string
}

// IsStale reports whether a lock taken at lockedAt has outlived timeout.
func IsStale(lockedAt, now time.Time, timeout time.Duration) bool {
	if lockedAt.IsZero() {
		return false
	}
	return !now.Before(lockedAt.Add(timeout))
}

// CanAcquireLock evaluates whether a worker may take the phase lock.
// Rules:
// - Completed phases are terminal
// - An existing lock must be stale to be reclaimed
func CanAcquireLock(ctx AcquireLockContext) GuardResult {
	if ctx.Status == StatusComplete {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("phase %s is already complete", ctx.Phase),
		}
	}

	if ctx.LockedBy != "" && !IsStale(ctx.LockedAt, ctx.Now, ctx.StaleTimeout) {
		return GuardResult{
			Allowed: false,
			Reason: fmt.Sprintf("phase %s is locked by %s since %s",
				ctx.Phase, ctx.LockedBy, ctx.LockedAt.UTC().Format(time.RFC3339)),
		}
	}

	return GuardResult{Allowed: true}
}

// CanReleaseLock evaluates whether a lease may still write to the checkpoint.
// Rules:
// - Outcome must be known
// - The checkpoint must be locked
// - The lease epoch must match (a reclaimed lock fences out the old holder)
func CanReleaseLock(ctx ReleaseLockContext) GuardResult {
	switch ctx.Outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeReleased:
	default:
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown release outcome %q", ctx.Outcome),
		}
	}

	if !ctx.Locked {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("checkpoint %s is not locked", ctx.CheckpointID),
		}
	}

	if ctx.LeaseEpoch != ctx.CurrentEpoch {
		return GuardResult{
			Allowed: false,
			Reason: fmt.Sprintf("lease epoch %d on checkpoint %s was superseded by epoch %d",
				ctx.LeaseEpoch, ctx.CheckpointID, ctx.CurrentEpoch),
		}
	}

	return GuardResult{Allowed: true}
}

// DecideRelease computes the status a release leaves behind.
//
// Success completes the phase when the target is met or the caller signals
// phase completion; released does the same for the signal only. Failure
// always blocks. With the obligation gate on, a completing release blocks
// instead while obligations remain open.
func DecideRelease(ctx ReleaseDecisionContext) ReleaseDecision {
	if ctx.Outcome == OutcomeFailure {
		reason := ctx.FailureReason
		if reason == "" {
			reason = "phase work failed"
		}
		return ReleaseDecision{Status: StatusBlocked, BlockedReason: reason}
	}

	completes := ctx.PhaseComplete
	if ctx.Outcome == OutcomeSuccess && ctx.TargetCount != nil && ctx.CompletedCount >= *ctx.TargetCount {
		completes = true
	}

	if !completes {
		return ReleaseDecision{Status: StatusInProgress}
	}

	if ctx.RequireObligationsClear && ctx.OpenObligations > 0 {
		return ReleaseDecision{
			Status:        StatusBlocked,
			BlockedReason: fmt.Sprintf("%d open obligation(s) must be resolved or dismissed before the phase can complete", ctx.OpenObligations),
		}
	}

	return ReleaseDecision{Status: StatusComplete}
}

// CanSetTargetCount evaluates whether target may replace the current target.
// Rules:
// - Target cannot be negative
// - Target cannot drop below the work already completed
// - Completed phases are terminal
func CanSetTargetCount(status string, completed int, target *int) GuardResult {
	if status == StatusComplete {
		return GuardResult{Allowed: false, Reason: "cannot change the target of a completed phase"}
	}
	if target == nil {
		return GuardResult{Allowed: true}
	}
	if *target < 0 {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("target count must not be negative (got %d)", *target)}
	}
	if *target < completed {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("target count %d is below completed count %d", *target, completed),
		}
	}
	return GuardResult{Allowed: true}
}
