// Package cli provides CLI commands for the quill application.
package cli

import (
	gocontext "context"

	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/wire"
)

// globalAgentFlag holds --agent for the current invocation.
var globalAgentFlag string

// SetAgentFlag records an explicit --agent value.
func SetAgentFlag(agentID string) {
	globalAgentFlag = agentID
}

// NewContext creates a context.Background() with the current actor ID embedded.
// CLI commands should use this instead of context.Background() directly.
func NewContext() gocontext.Context {
	ctx := gocontext.Background()
	if globalAgentFlag != "" {
		ctx = ctxutil.WithActorID(ctx, globalAgentFlag)
	}
	identity, err := wire.CurrentAgent(ctx)
	if err != nil {
		log.Warn("falling back to operator identity", "err", err)
		return ctxutil.WithActorID(ctx, "OPERATOR")
	}
	return ctxutil.WithActorID(ctx, identity.FullID)
}

// actorOf returns the actor embedded by NewContext.
func actorOf(ctx gocontext.Context) string {
	return ctxutil.ActorOr(ctx, "OPERATOR")
}
