// Package obligation contains the pure business logic for persona obligations.
// Guards are pure functions that evaluate preconditions without side effects.
package obligation

import (
	"fmt"
	"regexp"
	"strings"
)

// Obligation statuses. Resolved and dismissed are terminal.
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusDismissed = "dismissed"
)

// Close actions.
const (
	ActionResolve = "resolve"
	ActionDismiss = "dismiss"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

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

// RaiseContext provides context for raise guards.
type RaiseContext struct {
	PersonaID   string
	Slug        string
	Title       string
	SourcePhase string
}

// CloseContext provides context for resolve/dismiss guards.
type CloseContext struct {
	ObligationID string
	Status       string
	Action       string
	Actor        string
}

// CanRaise evaluates whether an obligation can be raised.
// Rules:
// - Persona, title and source phase are required
// - Slug must be kebab-case
func CanRaise(ctx RaiseContext) GuardResult {
	if ctx.PersonaID == "" {
		return GuardResult{Allowed: false, Reason: "persona id is required"}
	}
	if !slugPattern.MatchString(ctx.Slug) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("slug %q must be kebab-case (e.g. voice-consistency-mara)", ctx.Slug),
		}
	}
	if strings.TrimSpace(ctx.Title) == "" {
		return GuardResult{Allowed: false, Reason: "title is required"}
	}
	if ctx.SourcePhase == "" {
		return GuardResult{Allowed: false, Reason: "source phase is required"}
	}
	return GuardResult{Allowed: true}
}

// CanClose evaluates whether an obligation can be resolved or dismissed.
// Rules:
// - Action must be resolve or dismiss
// - Actor is required
// - Status must be "open"
func CanClose(ctx CloseContext) GuardResult {
	if ctx.Action != ActionResolve && ctx.Action != ActionDismiss {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown action %q (expected resolve or dismiss)", ctx.Action),
		}
	}
	if ctx.Actor == "" {
		return GuardResult{Allowed: false, Reason: "actor is required"}
	}
	if ctx.Status != StatusOpen {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("can only %s open obligations (obligation %s is %s)", ctx.Action, ctx.ObligationID, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// StatusForAction returns the terminal status an action produces.
func StatusForAction(action string) string {
	if action == ActionDismiss {
		return StatusDismissed
	}
	return StatusResolved
}
