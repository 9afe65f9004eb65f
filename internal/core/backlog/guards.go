// Package backlog contains the pure business logic for backlog items.
// Guards are pure functions that evaluate preconditions without side effects.
package backlog

import (
	"fmt"
	"strings"
)

// Backlog item statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// allowedTransitions is the complete backlog state machine.
var allowedTransitions = map[string]map[string]bool{
	StatusPending:    {StatusInProgress: true},
	StatusInProgress: {StatusComplete: true, StatusFailed: true},
	StatusFailed:     {StatusPending: true},
	StatusComplete:   {},
}

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

// EnqueueContext provides context for enqueue guards.
type EnqueueContext struct {
	BacklogID   string
	Description string
}

// ResumeContext provides context for resume guards.
type ResumeContext struct {
	BacklogID      string
	Status         string
	ConversationID string // prior linkage on the item
	TaskID         string // prior linkage on the item
}

// ValidStatus reports whether status is a backlog status.
func ValidStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// CanTransition evaluates whether an item may move from one status to another.
// Rules:
// - Only pending→in_progress, in_progress→{complete,failed} and failed→pending exist
func CanTransition(from, to string) GuardResult {
	if allowedTransitions[from][to] {
		return GuardResult{Allowed: true}
	}
	return GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("cannot move backlog item from %s to %s", from, to),
	}
}

// CanEnqueue evaluates whether an item can be added to the queue.
// Rules:
// - Backlog ID is required and must not contain whitespace
// - Description is required
func CanEnqueue(ctx EnqueueContext) GuardResult {
	if ctx.BacklogID == "" {
		return GuardResult{Allowed: false, Reason: "backlog id is required"}
	}
	if strings.ContainsAny(ctx.BacklogID, " \t\n") {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("backlog id %q must not contain whitespace", ctx.BacklogID),
		}
	}
	if strings.TrimSpace(ctx.Description) == "" {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("backlog item %s needs a description", ctx.BacklogID),
		}
	}
	return GuardResult{Allowed: true}
}

// CanResume evaluates whether an interrupted item can be re-attached.
// Rules:
// - Status must be "in_progress" or "failed"
func CanResume(ctx ResumeContext) GuardResult {
	if ctx.Status != StatusInProgress && ctx.Status != StatusFailed {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("can only resume in_progress or failed items (item %s is %s)", ctx.BacklogID, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// HasResumeMetadata evaluates whether the item carries the prior execution
// linkage a resume needs.
// Rules:
// - A prior conversation and task must have been recorded
func HasResumeMetadata(ctx ResumeContext) GuardResult {
	var missing []string
	if ctx.ConversationID == "" {
		missing = append(missing, "conversation")
	}
	if ctx.TaskID == "" {
		missing = append(missing, "task")
	}
	if len(missing) > 0 {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("item %s has no prior %s linkage", ctx.BacklogID, strings.Join(missing, " or ")),
		}
	}
	return GuardResult{Allowed: true}
}

// RetryableAfterFailure reports whether an item that has used attempts of
// its budget may be claimed again.
func RetryableAfterFailure(attempts, maxAttempts int) bool {
	return attempts < maxAttempts
}
