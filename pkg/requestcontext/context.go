// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values set by middleware and read by services.
//
//	requestID := requestcontext.RequestID(ctx)
//	actor := requestcontext.Actor(ctx)
//	now := requestcontext.Now(ctx)
//
// The actor role is deliberately absent: lifecycle operations take the role
// as an explicit argument.
package requestcontext

import (
	"context"
	"time"

	id "golden/pkg/domain"
)

type (
	actorIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyActorID     = actorIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Actor retrieves the authenticated actor from the context.
// Returns an empty ActorID if not set.
func Actor(ctx context.Context) id.ActorID {
	if actor, ok := ctx.Value(ContextKeyActorID).(id.ActorID); ok {
		return actor
	}
	return ""
}

// WithActor injects the authenticated actor into the context.
func WithActor(ctx context.Context, actor id.ActorID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actor)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
