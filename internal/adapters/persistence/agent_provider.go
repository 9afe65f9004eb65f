// Package persistence holds adapters that sit beside the database.
package persistence

import (
	"context"

	"github.com/example/quill/internal/agent"
	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/ports/secondary"
)

// AgentIdentityProviderAdapter resolves the acting agent from the context
// first, then from configuration and the environment.
type AgentIdentityProviderAdapter struct {
	configured string
}

// NewAgentIdentityProvider creates a provider. configured is the agent.id
// setting and may be empty.
func NewAgentIdentityProvider(configured string) *AgentIdentityProviderAdapter {
	return &AgentIdentityProviderAdapter{configured: configured}
}

// GetCurrentIdentity returns the identity of the current agent.
func (p *AgentIdentityProviderAdapter) GetCurrentIdentity(ctx context.Context) (*secondary.AgentIdentity, error) {
	var (
		identity *agent.AgentIdentity
		err      error
	)
	if actor := ctxutil.ActorFromContext(ctx); actor != "" {
		identity, err = agent.ParseAgentID(actor)
	} else {
		identity, err = agent.GetCurrentAgentID(p.configured)
	}
	if err != nil {
		return nil, err
	}

	return &secondary.AgentIdentity{
		Type:   string(identity.Type),
		ID:     identity.ID,
		FullID: identity.FullID,
	}, nil
}

var _ secondary.AgentIdentityProvider = (*AgentIdentityProviderAdapter)(nil)
