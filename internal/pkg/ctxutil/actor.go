package ctxutil

import (
	"context"
	"strings"
)

// DefaultActor attributes requests that carry no identity of their own.
const DefaultActor = "system"

type actorKey struct{}

func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = DefaultActor
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the acting user recorded on ctx, or DefaultActor.
func Actor(ctx context.Context) string {
	if ctx == nil {
		return DefaultActor
	}
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
