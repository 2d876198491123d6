package services

import "context"

type actorKey struct{}

// AnonymousActor is recorded when no authenticated user is attached to a request
const AnonymousActor = "anonymous"

// WithActor attaches the name of the user issuing a mutation to ctx
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor, or AnonymousActor
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return AnonymousActor
}
