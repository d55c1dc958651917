// Package identity resolves the acting user of an operation.
//
// The social core never authenticates anyone itself: it asks an ActorProvider
// for the current actor id and treats "no actor" as anonymous.
package identity

import "context"

// ActorProvider exposes the current actor. ok is false for anonymous callers.
type ActorProvider interface {
	CurrentActorID(ctx context.Context) (id string, ok bool)
}

type actorKey struct{}

// WithActor returns a context carrying actorID. An empty id leaves ctx anonymous.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}

// ContextProvider reads the actor placed on the context by the HTTP auth
// middleware or by WithActor.
type ContextProvider struct{}

func (ContextProvider) CurrentActorID(ctx context.Context) (string, bool) {
	return ActorFromContext(ctx)
}

// Static always reports the same actor. The zero value is anonymous.
type Static string

func (s Static) CurrentActorID(context.Context) (string, bool) {
	return string(s), s != ""
}

// Func adapts a function to ActorProvider.
type Func func(ctx context.Context) (string, bool)

func (f Func) CurrentActorID(ctx context.Context) (string, bool) { return f(ctx) }
