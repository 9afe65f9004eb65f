package secondary

import "context"

// GenerationRequest is one generation turn for a backlog item.
type GenerationRequest struct {
	PlanID      string   `json:"plan_id"`
	Phase       string   `json:"phase"`
	BacklogID   string   `json:"backlog_id"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs,omitempty"`
	Attempt     int      `json:"attempt"`
	IsRetry     bool     `json:"is_retry"`
	// PriorBody is the slot's active content, if any.
	PriorBody string `json:"prior_body,omitempty"`

	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	TaskID         string `json:"task_id"`
	ProviderID     string `json:"provider_id,omitempty"`
	ModelID        string `json:"model_id,omitempty"`
}

// GenerationUsage reports token consumption.
type GenerationUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// RaisedObligation is an obligation the generator reports owing.
type RaisedObligation struct {
	PersonaID  string `json:"persona_id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	BranchSlug string `json:"branch_slug,omitempty"`
}

// GenerationResult is what a generation turn produced.
type GenerationResult struct {
	// Validation is one of valid, invalid, error.
	Validation        string             `json:"validation"`
	ValidationDetails string             `json:"validation_details,omitempty"`
	Body              string             `json:"body"`
	Title             string             `json:"title,omitempty"`
	Summary           string             `json:"summary,omitempty"`
	Outputs           []string           `json:"outputs,omitempty"`
	Usage             GenerationUsage    `json:"usage"`
	Obligations       []RaisedObligation `json:"obligations,omitempty"`

	// Raw payloads for the transcript; filled in by the adapter.
	RequestPayload  string `json:"-"`
	ResponsePayload string `json:"-"`
}

// Generator performs one opaque generation turn.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// PersonaRecord is display metadata for a persona.
type PersonaRecord struct {
	ID          string
	DisplayName string
	Voice       string
	Description string
}

// PersonaDirectory resolves persona display metadata, read-only.
type PersonaDirectory interface {
	// Lookup returns ErrNotFound for unknown personas.
	Lookup(ctx context.Context, personaID string) (*PersonaRecord, error)
	List(ctx context.Context) ([]*PersonaRecord, error)
}

// AgentIdentity represents the identity of the acting agent.
type AgentIdentity struct {
	Type   string
	ID     string
	FullID string
}

// AgentIdentityProvider resolves who is acting.
type AgentIdentityProvider interface {
	GetCurrentIdentity(ctx context.Context) (*AgentIdentity, error)
}
