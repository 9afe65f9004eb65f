package primary

import "context"

// PlanService defines the primary port for plan lifecycle and roster operations.
type PlanService interface {
	// CreatePlan creates a draft plan with one checkpoint per phase.
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*CreatePlanResponse, error)

	// GetPlan retrieves a plan by ID.
	GetPlan(ctx context.Context, planID string) (*Plan, error)

	// ListPlans lists plans with optional filters.
	ListPlans(ctx context.Context, filters PlanFilters) ([]*Plan, error)

	// EnterPhase adds a not-started checkpoint for a new phase.
	EnterPhase(ctx context.Context, req EnterPhaseRequest) (*Checkpoint, error)

	// SetPlanStatus moves a plan through draft/active/completed/archived.
	SetPlanStatus(ctx context.Context, planID, status string) (*Plan, error)

	// BranchPlan creates a new draft plan derived from an existing one.
	BranchPlan(ctx context.Context, req BranchPlanRequest) (*CreatePlanResponse, error)

	// DeletePlan deletes a plan and everything it owns.
	DeletePlan(ctx context.Context, req DeletePlanRequest) error

	// GetPlanStatus reports checkpoints, backlog counts and open obligations.
	GetPlanStatus(ctx context.Context, planID string) (*PlanStatus, error)

	// GetRoster lists the plan's characters and lore requirements.
	GetRoster(ctx context.Context, planID string) (*Roster, error)

	// AddCharacter places a persona in the plan's cast.
	AddCharacter(ctx context.Context, req AddCharacterRequest) (*Character, error)

	// AddLoreRequirement records a world-bible entry the plan depends on.
	AddLoreRequirement(ctx context.Context, req AddLoreRequirementRequest) (*LoreRequirement, error)
}

// PhaseSpec names a phase and its optional target count.
type PhaseSpec struct {
	Name        string
	TargetCount *int
}

// CreatePlanRequest contains parameters for creating a plan.
type CreatePlanRequest struct {
	ProjectRef    string
	PrimaryBranch string // defaults to "main"
	Title         string
	Template      string // template name, recorded for reference
	Phases        []PhaseSpec
}

// CreatePlanResponse contains the result of creating a plan.
type CreatePlanResponse struct {
	PlanID      string
	Plan        *Plan
	Checkpoints []*Checkpoint
}

// EnterPhaseRequest contains parameters for adding a phase.
type EnterPhaseRequest struct {
	PlanID      string
	Phase       string
	TargetCount *int
}

// BranchPlanRequest contains parameters for branching a plan.
type BranchPlanRequest struct {
	PlanID string
	Branch string
	Title  string // defaults to the source title
}

// DeletePlanRequest contains parameters for deleting a plan.
type DeletePlanRequest struct {
	PlanID string
	Force  bool
}

// PlanFilters contains filter options for listing plans.
type PlanFilters struct {
	ProjectRef string
	Status     string
}

// Plan represents a plan entity at the port boundary.
type Plan struct {
	ID            string
	ProjectRef    string
	PrimaryBranch string
	Title         string
	Template      string
	Status        string
	SourcePlanID  string
	CreatedAt     string
	UpdatedAt     string
	CompletedAt   string
}

// PlanStatus is the operator's overview of a plan.
type PlanStatus struct {
	Plan            *Plan
	Checkpoints     []*Checkpoint
	Backlog         BacklogSummary
	OpenObligations int
}

// Roster is the plan's cast and lore dependencies.
type Roster struct {
	Characters       []*Character
	LoreRequirements []*LoreRequirement
}

// Character represents a cast member at the port boundary.
type Character struct {
	ID          string
	PlanID      string
	PersonaID   string
	Name        string
	DisplayName string // from the persona directory, falls back to Name
	Role        string
	Voice       string
}

// LoreRequirement represents a required world-bible entry.
type LoreRequirement struct {
	ID          string
	PlanID      string
	Topic       string
	Description string
	SlotID      string
	Satisfied   bool
}

// AddCharacterRequest contains parameters for adding a character.
type AddCharacterRequest struct {
	PlanID    string
	PersonaID string
	Name      string
	Role      string
}

// AddLoreRequirementRequest contains parameters for adding a lore requirement.
// The world-bible slot keyed by Topic is created when missing.
type AddLoreRequirementRequest struct {
	PlanID      string
	Topic       string
	Description string
}
