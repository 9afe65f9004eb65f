package primary

import "context"

// ContentService defines the primary port for versioned narrative content.
type ContentService interface {
	// EnsureSlot returns the slot for (plan, kind, key), creating it if needed.
	EnsureSlot(ctx context.Context, req EnsureSlotRequest) (*Slot, error)

	// GetSlot retrieves a slot by ID.
	GetSlot(ctx context.Context, slotID string) (*Slot, error)

	// ListSlots lists a plan's slots, optionally of one kind.
	ListSlots(ctx context.Context, planID, kind string) ([]*Slot, error)

	// CreateVersion appends an inactive version with the next index.
	CreateVersion(ctx context.Context, req CreateVersionRequest) (*Version, error)

	// Activate makes a version the only active one of its slot.
	// Fails with ErrVersionNotFound.
	Activate(ctx context.Context, versionID string) (*Version, error)

	// Branch copies a version into a new tagged version without touching
	// the active one.
	Branch(ctx context.Context, req BranchRequest) (*Version, error)

	// GetVersion retrieves a version by ID.
	GetVersion(ctx context.Context, versionID string) (*Version, error)

	// GetActive returns a slot's active version. Fails with ErrVersionNotFound
	// when no version is active.
	GetActive(ctx context.Context, slotID string) (*Version, error)

	// ListVersions lists a slot's versions by index.
	ListVersions(ctx context.Context, slotID string) ([]*Version, error)

	// Lineage returns a version and its derived_from ancestors, newest first.
	Lineage(ctx context.Context, versionID string) ([]*Version, error)
}

// EnsureSlotRequest contains parameters for creating a slot.
type EnsureSlotRequest struct {
	PlanID          string
	Kind            string
	Key             string
	ContainerSlotID string
}

// CreateVersionRequest contains parameters for creating a version.
type CreateVersionRequest struct {
	SlotID        string
	Body          string
	DerivedFromID string
	Metadata      ContentMetadata
}

// BranchRequest contains parameters for branching a version.
type BranchRequest struct {
	VersionID string
	BranchTag string
}

// ContentMetadata holds optional descriptive fields of a version.
type ContentMetadata struct {
	Title       string
	Summary     string
	WordCount   int
	AuthorAgent string
	BacklogID   string
}

// Slot represents a content slot at the port boundary.
type Slot struct {
	ID              string
	PlanID          string
	Kind            string
	Key             string
	ContainerSlotID string
	CreatedAt       string
}

// Version represents a content version at the port boundary.
type Version struct {
	ID            string
	SlotID        string
	VersionIndex  int
	IsActive      bool
	DerivedFromID string
	BranchTag     string
	Body          string
	Metadata      ContentMetadata
	CreatedAt     string
	ActivatedAt   string
}
