package primary

import "context"

// ObligationService defines the primary port for persona obligations.
type ObligationService interface {
	// Raise opens an obligation. Fails with ErrDuplicateObligation.
	Raise(ctx context.Context, req RaiseObligationRequest) (*Obligation, error)

	// Resolve closes an open obligation as resolved.
	Resolve(ctx context.Context, req CloseObligationRequest) (*Obligation, error)

	// Dismiss closes an open obligation as dismissed.
	Dismiss(ctx context.Context, req CloseObligationRequest) (*Obligation, error)

	// ResolveObligation applies action (resolve or dismiss) as the context actor.
	ResolveObligation(ctx context.Context, req ResolveObligationRequest) (*Obligation, error)

	// GetObligation retrieves an obligation with its history.
	GetObligation(ctx context.Context, obligationID string) (*Obligation, error)

	// ListObligations lists a plan's obligations.
	ListObligations(ctx context.Context, filters ObligationFilters) ([]*Obligation, error)

	// CountOpen counts open obligations, optionally for one source phase.
	CountOpen(ctx context.Context, planID, phase string) (int, error)
}

// RaiseObligationRequest contains parameters for raising an obligation.
type RaiseObligationRequest struct {
	PlanID          string
	PersonaID       string
	Slug            string
	Title           string
	SourcePhase     string
	SourceBacklogID string // optional
	BranchSlug      string // optional
}

// CloseObligationRequest contains parameters for resolve/dismiss.
type CloseObligationRequest struct {
	ObligationID string
	Actor        string
	Notes        string
	VoiceDrift   bool // resolve only
}

// ResolveObligationRequest is the consumer-facing close call.
type ResolveObligationRequest struct {
	ObligationID string
	Action       string // resolve or dismiss
	Notes        string
	VoiceDrift   bool
}

// ObligationFilters contains filter options for listing obligations.
type ObligationFilters struct {
	PlanID    string
	OpenOnly  bool
	Phase     string
	PersonaID string
}

// Obligation represents an obligation at the port boundary.
type Obligation struct {
	ID              string
	PlanID          string
	PersonaID       string
	PersonaName     string
	Slug            string
	Title           string
	SourcePhase     string
	SourceBacklogID string
	BranchSlug      string
	Status          string
	ResolvedBy      string
	ResolvedAt      string
	VoiceDrift      bool
	CreatedAt       string
	History         []*ObligationNote
}

// ObligationNote is one immutable history entry.
type ObligationNote struct {
	Actor     string
	Action    string
	Notes     string
	CreatedAt string
}
