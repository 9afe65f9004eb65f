// Package apperr defines the error taxonomy shared by services and adapters.
//
// Specific errors wrap their family sentinel, so callers can match either
// errors.Is(err, ErrDuplicateBacklogID) or errors.Is(err, ErrDuplicateKey).
package apperr

import (
	"errors"
	"fmt"
)

// Family sentinels.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrBusy                = errors.New("busy")
)

// Duplicate keys.
var (
	ErrDuplicateBacklogID  = fmt.Errorf("%w: backlog id already exists", ErrDuplicateKey)
	ErrDuplicatePhase      = fmt.Errorf("%w: phase already exists for plan", ErrDuplicateKey)
	ErrDuplicateVersion    = fmt.Errorf("%w: version index already exists", ErrDuplicateKey)
	ErrDuplicateObligation = fmt.Errorf("%w: obligation already raised", ErrDuplicateKey)
	ErrDuplicateSlot       = fmt.Errorf("%w: content slot already exists", ErrDuplicateKey)
	ErrDuplicateRoster     = fmt.Errorf("%w: roster entry already exists", ErrDuplicateKey)
)

// Missing rows.
var (
	ErrPlanNotFound        = fmt.Errorf("%w: plan", ErrNotFound)
	ErrCheckpointNotFound  = fmt.Errorf("%w: checkpoint", ErrNotFound)
	ErrBacklogItemNotFound = fmt.Errorf("%w: backlog item", ErrNotFound)
	ErrSlotNotFound        = fmt.Errorf("%w: content slot", ErrNotFound)
	ErrVersionNotFound     = fmt.Errorf("%w: version", ErrNotFound)
	ErrObligationNotFound  = fmt.Errorf("%w: obligation", ErrNotFound)
)

// Coordination.
var (
	ErrLockHeld              = errors.New("lock held")
	ErrLockStale             = errors.New("lock stale")
	ErrNoWorkAvailable       = errors.New("no work available")
	ErrMissingResumeMetadata = errors.New("missing resume metadata")
	ErrMaxRetriesExceeded    = errors.New("max retries exceeded")
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidTransition     = fmt.Errorf("%w: transition not allowed", ErrInvalidState)
	ErrAttemptOutOfOrder     = fmt.Errorf("%w: attempt numbers must strictly increase", ErrInvalidArgument)
	ErrInvalidLineage        = fmt.Errorf("%w: derived version must belong to the same slot", ErrInvalidArgument)
)

// Kind groups errors by how a caller should react.
type Kind int

const (
	// KindInternal is anything unclassified; surface and investigate.
	KindInternal Kind = iota
	// KindUserActionable errors are shown to the operator as-is.
	KindUserActionable
	// KindRetryable errors are retried with backoff before surfacing as busy.
	KindRetryable
	// KindItemFatal errors fail a single backlog item, never the plan.
	KindItemFatal
)

func (k Kind) String() string {
	switch k {
	case KindUserActionable:
		return "user_actionable"
	case KindRetryable:
		return "retryable"
	case KindItemFatal:
		return "item_fatal"
	default:
		return "internal"
	}
}

// Classify maps an error onto its propagation kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrBusy):
		// Retries are exhausted once an error is wrapped as busy.
		return KindUserActionable
	case errors.Is(err, ErrLockHeld), errors.Is(err, ErrPersistenceConflict):
		return KindRetryable
	case errors.Is(err, ErrMaxRetriesExceeded), errors.Is(err, ErrValidationFailed):
		return KindItemFatal
	case errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrMissingResumeMetadata),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrLockStale),
		errors.Is(err, ErrNoWorkAvailable):
		return KindUserActionable
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err should be retried transparently.
func IsRetryable(err error) bool {
	return Classify(err) == KindRetryable
}

// Busy wraps a retryable error whose retry budget ran out.
func Busy(err error) error {
	return fmt.Errorf("%w: %w", ErrBusy, err)
}
