// Package plan contains the pure business logic for plan lifecycle operations.
// Guards are pure functions that evaluate preconditions without side effects.
package plan

import (
	"fmt"
	"strings"
)

// Plan statuses.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

var allowedTransitions = map[string]map[string]bool{
	StatusDraft:     {StatusActive: true, StatusArchived: true},
	StatusActive:    {StatusCompleted: true, StatusArchived: true},
	StatusCompleted: {StatusArchived: true, StatusActive: true},
	StatusArchived:  {},
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

// CreatePlanContext provides context for plan creation guards.
type CreatePlanContext struct {
	ProjectRef string
	Phases     []string
}

// EnterPhaseContext provides context for adding a phase to a plan.
type EnterPhaseContext struct {
	PlanID      string
	PlanStatus  string
	Phase       string
	PhaseExists bool
}

// DeletePlanContext provides context for plan deletion guards.
type DeletePlanContext struct {
	PlanID      string
	LockedCount int // checkpoints currently holding a lock
	Force       bool
}

// BranchPlanContext provides context for plan branching guards.
type BranchPlanContext struct {
	PlanID     string
	PlanStatus string
	Branch     string
}

// CanCreatePlan evaluates whether a plan can be created.
// Rules:
// - Project reference is required
// - At least one phase, no blank or duplicate phase names
func CanCreatePlan(ctx CreatePlanContext) GuardResult {
	if strings.TrimSpace(ctx.ProjectRef) == "" {
		return GuardResult{Allowed: false, Reason: "project reference is required"}
	}
	if len(ctx.Phases) == 0 {
		return GuardResult{Allowed: false, Reason: "a plan needs at least one phase"}
	}

	seen := make(map[string]bool, len(ctx.Phases))
	for _, p := range ctx.Phases {
		if strings.TrimSpace(p) == "" {
			return GuardResult{Allowed: false, Reason: "phase names must not be blank"}
		}
		if seen[p] {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("phase %s is listed twice", p)}
		}
		seen[p] = true
	}
	return GuardResult{Allowed: true}
}

// CanTransition evaluates a plan status change.
// Rules:
// - draft→active, active→completed, completed→active (new phase entered)
// - anything but archived can be archived; archived is terminal
func CanTransition(planID, from, to string) GuardResult {
	if allowedTransitions[from][to] {
		return GuardResult{Allowed: true}
	}
	return GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("cannot move plan %s from %s to %s", planID, from, to),
	}
}

// CanEnterPhase evaluates whether a new phase can be added to a plan.
// Rules:
// - Archived plans are frozen
// - Phase must not already exist
func CanEnterPhase(ctx EnterPhaseContext) GuardResult {
	if ctx.PlanStatus == StatusArchived {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("plan %s is archived", ctx.PlanID),
		}
	}
	if strings.TrimSpace(ctx.Phase) == "" {
		return GuardResult{Allowed: false, Reason: "phase name is required"}
	}
	if ctx.PhaseExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("plan %s already has phase %s", ctx.PlanID, ctx.Phase),
		}
	}
	return GuardResult{Allowed: true}
}

// CanDeletePlan evaluates whether a plan can be deleted.
// Rules:
// - A plan with live phase locks needs --force
func CanDeletePlan(ctx DeletePlanContext) GuardResult {
	if ctx.LockedCount > 0 && !ctx.Force {
		return GuardResult{
			Allowed: false,
			Reason: fmt.Sprintf("plan %s has %d locked phase(s). Use --force to delete anyway: quill plan delete %s --force",
				ctx.PlanID, ctx.LockedCount, ctx.PlanID),
		}
	}
	return GuardResult{Allowed: true}
}

// CanBranchPlan evaluates whether a plan can be branched.
// Rules:
// - Branch identifier is required
// - Archived plans cannot be branched
func CanBranchPlan(ctx BranchPlanContext) GuardResult {
	if strings.TrimSpace(ctx.Branch) == "" {
		return GuardResult{Allowed: false, Reason: "branch identifier is required"}
	}
	if ctx.PlanStatus == StatusArchived {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot branch archived plan %s", ctx.PlanID),
		}
	}
	return GuardResult{Allowed: true}
}
