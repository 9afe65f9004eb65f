// Package transcript contains the rules for the append-only attempt log.
package transcript

import "fmt"

// Validation statuses.
const (
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
	ValidationError   = "error"
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

// RecordAttemptContext provides context for attempt recording guards.
type RecordAttemptContext struct {
	Phase            string
	AgentID          string
	Attempt          int
	LastAttempt      int // 0 if none recorded
	ValidationStatus string
}

// ValidStatus reports whether s is a validation status.
func ValidStatus(s string) bool {
	return s == ValidationValid || s == ValidationInvalid || s == ValidationError
}

// IsFailure reports whether an attempt with status s needs another try.
func IsFailure(s string) bool {
	return s == ValidationInvalid || s == ValidationError
}

// CanRecordAttempt evaluates whether an attempt may be appended.
// Rules:
// - Phase and agent are required
// - Validation status must be known
// - Attempt numbers start at 1 and strictly increase per key
func CanRecordAttempt(ctx RecordAttemptContext) GuardResult {
	if ctx.Phase == "" {
		return GuardResult{Allowed: false, Reason: "phase is required"}
	}
	if ctx.AgentID == "" {
		return GuardResult{Allowed: false, Reason: "agent id is required"}
	}
	if !ValidStatus(ctx.ValidationStatus) {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown validation status %q", ctx.ValidationStatus)}
	}
	if ctx.Attempt < 1 {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("attempt must be at least 1 (got %d)", ctx.Attempt)}
	}
	if ctx.Attempt <= ctx.LastAttempt {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("attempt %d does not follow recorded attempt %d", ctx.Attempt, ctx.LastAttempt),
		}
	}
	return GuardResult{Allowed: true}
}
