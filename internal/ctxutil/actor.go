// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// ActorKey is the context key for the acting agent ID.
type ActorKey struct{}

// ConversationKey is the context key for the conversation the actor works in.
type ConversationKey struct{}

// WithActorID returns a context with the actor ID embedded.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext returns the actor ID from context, or empty string if not set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey{}).(string); ok {
		return v
	}
	return ""
}

// WithConversationID returns a context carrying the conversation ID.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationKey{}, conversationID)
}

// ConversationFromContext returns the conversation ID, or empty string if not set.
func ConversationFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ConversationKey{}).(string); ok {
		return v
	}
	return ""
}

// ActorOr returns the context actor, falling back to def.
func ActorOr(ctx context.Context, def string) string {
	if a := ActorFromContext(ctx); a != "" {
		return a
	}
	return def
}
