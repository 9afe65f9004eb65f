// Package secondary defines the driven ports: persistence and the external
// collaborators the coordinator consumes.
package secondary

import (
	"context"
	"iter"
	"time"
)

// ============================================================================
// Plans
// ============================================================================

// PlanRecord represents a plan as stored in persistence.
type PlanRecord struct {
	ID            string
	ProjectRef    string
	PrimaryBranch string
	Title         string
	Template      string
	Status        string
	SourcePlanID  string // set when branched from another plan
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   time.Time // zero if never completed
}

// PlanFilters contains filter options for querying plans.
type PlanFilters struct {
	ProjectRef string
	Status     string
}

// PlanRepository defines the secondary port for plan persistence.
type PlanRepository interface {
	// Create persists a plan and its initial checkpoints in one transaction.
	Create(ctx context.Context, plan *PlanRecord, checkpoints []*CheckpointRecord) error

	// GetByID retrieves a plan by its ID.
	GetByID(ctx context.Context, id string) (*PlanRecord, error)

	// List retrieves plans matching the given filters.
	List(ctx context.Context, filters PlanFilters) ([]*PlanRecord, error)

	// UpdateStatus moves a plan from one status to another.
	// Fails with a persistence conflict if the plan is no longer in from.
	UpdateStatus(ctx context.Context, id, from, to string, now time.Time) error

	// Delete removes a plan and everything it owns.
	Delete(ctx context.Context, id string) error
}

// ============================================================================
// Checkpoints
// ============================================================================

// CheckpointRecord represents the lock+progress row for one (plan, phase).
type CheckpointRecord struct {
	ID                   string
	PlanID               string
	Phase                string
	Position             int
	Status               string
	CompletedCount       int
	TargetCount          *int
	LockedByAgent        string
	LockedByConversation string
	LockedAt             time.Time // zero if unlocked
	LockEpoch            int64
	BlockedReason        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          time.Time
}

// Locked reports whether the lock fields are set.
func (c *CheckpointRecord) Locked() bool {
	return c.LockedByAgent != ""
}

// AcquireLockParams carries a conditional lock acquisition.
type AcquireLockParams struct {
	PlanID         string
	Phase          string
	AgentID        string
	ConversationID string
	Now            time.Time
	// StaleBefore is the cutoff: locks taken at or before it are reclaimable.
	StaleBefore time.Time
}

// ReleaseLockParams carries a fenced lock release.
type ReleaseLockParams struct {
	CheckpointID  string
	Epoch         int64
	Increment     int
	Status        string
	BlockedReason string
	Now           time.Time
}

// CheckpointRepository defines the secondary port for checkpoint persistence.
type CheckpointRepository interface {
	Create(ctx context.Context, cp *CheckpointRecord) error
	GetByID(ctx context.Context, id string) (*CheckpointRecord, error)
	GetByPhase(ctx context.Context, planID, phase string) (*CheckpointRecord, error)
	List(ctx context.Context, planID string) ([]*CheckpointRecord, error)

	// AcquireLock takes the lock with a single conditional update. Returns
	// the updated checkpoint, or ErrLockHeld when the row did not qualify.
	AcquireLock(ctx context.Context, params AcquireLockParams) (*CheckpointRecord, error)

	// ReleaseLock clears the lock only while the epoch still matches.
	// Returns ErrLockStale if the lease was superseded.
	ReleaseLock(ctx context.Context, params ReleaseLockParams) (*CheckpointRecord, error)

	// Heartbeat refreshes locked_at for the holder of epoch.
	Heartbeat(ctx context.Context, checkpointID string, epoch int64, now time.Time) error

	// SetTargetCount replaces the target (nil clears it).
	SetTargetCount(ctx context.Context, checkpointID string, target *int, now time.Time) error
}

// ============================================================================
// Backlog
// ============================================================================

// ExecutionContext links a backlog item to the conversation doing its work.
type ExecutionContext struct {
	ConversationID     string
	ConversationPlanID string
	TaskID             string
	ProviderID         string
	ModelID            string
}

// Empty reports whether no linkage is set.
func (e ExecutionContext) Empty() bool {
	return e == ExecutionContext{}
}

// BacklogItemRecord represents a queued unit of work.
type BacklogItemRecord struct {
	ID            string
	Seq           int64
	PlanID        string
	BacklogID     string
	Phase         string
	TargetSlotID  string
	Description   string
	Inputs        []string
	Outputs       []string
	Status        string
	Retryable     bool
	FailureReason string
	AttemptCount  int
	Execution     ExecutionContext
	CreatedAt     time.Time
	UpdatedAt     time.Time
	InProgressAt  time.Time
	CompletedAt   time.Time
	FailedAt      time.Time
}

// BacklogFilters contains filter options for querying backlog items.
type BacklogFilters struct {
	PlanID string
	Phase  string
	Status string
}

// ClaimParams carries a claim of the oldest eligible item.
type ClaimParams struct {
	PlanID string
	Phase  string // empty claims across phases
	// IncludeRetryable requeues the oldest retryable failed item when
	// nothing is pending.
	IncludeRetryable bool
	Execution        ExecutionContext
	Now              time.Time
}

// TransitionParams carries a conditional status change.
type TransitionParams struct {
	PlanID        string
	BacklogID     string
	From          string
	To            string
	Outputs       []string
	FailureReason string
	Retryable     bool
	Now           time.Time
}

// ResumeParams carries a re-attachment to a new execution context.
type ResumeParams struct {
	PlanID    string
	BacklogID string
	From      string
	Execution ExecutionContext
	Now       time.Time
}

// BacklogRepository defines the secondary port for backlog persistence.
type BacklogRepository interface {
	// Create enqueues an item. Returns ErrDuplicateBacklogID on key collision.
	Create(ctx context.Context, item *BacklogItemRecord) error
	Get(ctx context.Context, planID, backlogID string) (*BacklogItemRecord, error)
	List(ctx context.Context, filters BacklogFilters) ([]*BacklogItemRecord, error)

	// ClaimNext flips the oldest eligible item to in_progress.
	// Returns ErrNoWorkAvailable when nothing qualifies.
	ClaimNext(ctx context.Context, params ClaimParams) (*BacklogItemRecord, error)

	// Transition applies a status change conditioned on the current status.
	Transition(ctx context.Context, params TransitionParams) (*BacklogItemRecord, error)

	// Resume re-attaches an in_progress or failed item to a new execution
	// context and leaves it in_progress.
	Resume(ctx context.Context, params ResumeParams) (*BacklogItemRecord, error)

	// CountByStatus tallies items for a plan, optionally narrowed to a phase.
	CountByStatus(ctx context.Context, planID, phase string) (map[string]int, error)

	// CountRetryable counts failed items that may be claimed again.
	CountRetryable(ctx context.Context, planID, phase string) (int, error)
}

// ============================================================================
// Content
// ============================================================================

// SlotRecord is a position in the narrative hierarchy that holds versions.
type SlotRecord struct {
	ID              string
	PlanID          string
	Kind            string
	Key             string
	ContainerSlotID string
	CreatedAt       time.Time
}

// ContentMetadata holds optional descriptive fields of a version.
type ContentMetadata struct {
	Title       string `json:"title,omitempty"`
	Summary     string `json:"summary,omitempty"`
	WordCount   int    `json:"word_count,omitempty"`
	AuthorAgent string `json:"author_agent,omitempty"`
	BacklogID   string `json:"backlog_id,omitempty"`
}

// VersionRecord is one version of a slot's content.
type VersionRecord struct {
	ID            string
	Seq           int64
	SlotID        string
	VersionIndex  int
	IsActive      bool
	DerivedFromID string
	BranchTag     string
	Body          string
	Metadata      ContentMetadata
	CreatedAt     time.Time
	ActivatedAt   time.Time
}

// CreateVersionParams carries a new version.
type CreateVersionParams struct {
	ID            string
	SlotID        string
	Body          string
	DerivedFromID string
	BranchTag     string
	Metadata      ContentMetadata
	Now           time.Time
}

// ContentRepository defines the secondary port for versioned content.
type ContentRepository interface {
	CreateSlot(ctx context.Context, slot *SlotRecord) error
	GetSlot(ctx context.Context, id string) (*SlotRecord, error)
	FindSlot(ctx context.Context, planID, kind, key string) (*SlotRecord, error)
	ListSlots(ctx context.Context, planID, kind string) ([]*SlotRecord, error)

	// CreateVersion assigns the next version index and inserts the version
	// inactive. Lineage is validated in the same transaction.
	CreateVersion(ctx context.Context, params CreateVersionParams) (*VersionRecord, error)
	GetVersion(ctx context.Context, id string) (*VersionRecord, error)

	// GetActive returns the active version of a slot, or nil if none is active.
	GetActive(ctx context.Context, slotID string) (*VersionRecord, error)
	ListVersions(ctx context.Context, slotID string) ([]*VersionRecord, error)

	// Activate makes id the only active version of its slot.
	Activate(ctx context.Context, id string, now time.Time) (*VersionRecord, error)

	// Lineage walks derived_from pointers from id back to its root.
	Lineage(ctx context.Context, id string) ([]*VersionRecord, error)
}

// ============================================================================
// Transcript
// ============================================================================

// TranscriptEntryRecord is one logged generation attempt.
type TranscriptEntryRecord struct {
	ID                string
	PlanID            string
	Phase             string
	TargetNodeID      string
	Attempt           int
	AgentID           string
	ConversationID    string
	RequestPayload    string
	ResponsePayload   string
	PromptTokens      int
	CompletionTokens  int
	LatencyMs         int64
	ValidationStatus  string
	ValidationDetails string
	IsRetry           bool
	CreatedAt         time.Time
}

// TranscriptFilters selects a history. A nil TargetNodeID spans all targets.
type TranscriptFilters struct {
	PlanID       string
	Phase        string
	TargetNodeID *string
}

// TranscriptRepository defines the secondary port for the attempt log.
type TranscriptRepository interface {
	// Append inserts an entry. Returns ErrAttemptOutOfOrder if the attempt
	// does not exceed every recorded attempt for its key.
	Append(ctx context.Context, entry *TranscriptEntryRecord) error

	// Entries streams matching entries in recorded order.
	Entries(ctx context.Context, filters TranscriptFilters) iter.Seq2[*TranscriptEntryRecord, error]

	// MaxAttempt returns the highest attempt recorded for a key, 0 if none.
	MaxAttempt(ctx context.Context, planID, phase, targetNodeID string) (int, error)
}

// ============================================================================
// Obligations
// ============================================================================

// ObligationRecord is a continuity commitment owed by a persona.
type ObligationRecord struct {
	ID              string
	PlanID          string
	PersonaID       string
	Slug            string
	Title           string
	SourcePhase     string
	SourceBacklogID string
	BranchSlug      string
	Status          string
	ResolvedBy      string
	ResolvedAt      time.Time
	VoiceDrift      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ObligationNoteRecord is one entry in an obligation's history.
type ObligationNoteRecord struct {
	ObligationID string
	Actor        string
	Action       string
	Notes        string
	CreatedAt    time.Time
}

// ObligationFilters contains filter options for querying obligations.
type ObligationFilters struct {
	PlanID    string
	OpenOnly  bool
	Phase     string
	PersonaID string
}

// CloseObligationParams carries a resolve or dismiss.
type CloseObligationParams struct {
	ID         string
	Status     string
	Action     string
	Actor      string
	Notes      string
	VoiceDrift bool
	Now        time.Time
}

// ObligationRepository defines the secondary port for obligation persistence.
type ObligationRepository interface {
	// Create raises an obligation. Returns ErrDuplicateObligation on collision.
	Create(ctx context.Context, o *ObligationRecord) error
	GetByID(ctx context.Context, id string) (*ObligationRecord, error)
	List(ctx context.Context, filters ObligationFilters) ([]*ObligationRecord, error)
	CountOpen(ctx context.Context, planID, phase string) (int, error)

	// Close moves an open obligation to a terminal status and appends the
	// note, atomically. Returns ErrInvalidState if it was not open.
	Close(ctx context.Context, params CloseObligationParams) (*ObligationRecord, error)

	// AppendNote adds to the history without changing status.
	AppendNote(ctx context.Context, note *ObligationNoteRecord) error
	Notes(ctx context.Context, obligationID string) ([]*ObligationNoteRecord, error)
}

// ============================================================================
// Roster
// ============================================================================

// CharacterRecord places a persona in a plan's cast.
type CharacterRecord struct {
	ID        string
	PlanID    string
	PersonaID string
	Name      string
	Role      string
	CreatedAt time.Time
}

// LoreRequirementRecord names a world-bible entry a plan depends on.
type LoreRequirementRecord struct {
	ID          string
	PlanID      string
	Topic       string
	Description string
	SlotID      string
	Satisfied   bool // slot has an active version; computed on read
	CreatedAt   time.Time
}

// RosterRepository defines the secondary port for characters and lore.
type RosterRepository interface {
	AddCharacter(ctx context.Context, c *CharacterRecord) error
	ListCharacters(ctx context.Context, planID string) ([]*CharacterRecord, error)
	AddLoreRequirement(ctx context.Context, l *LoreRequirementRecord) error
	ListLoreRequirements(ctx context.Context, planID string) ([]*LoreRequirementRecord, error)
}
