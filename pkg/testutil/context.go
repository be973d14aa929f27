package testutil

import (
	"context"
	"net/http"

	id "golden/pkg/domain"
	"golden/pkg/requestcontext"
)

// WithActor adds an actor to the request context, as the auth middleware
// would for an authenticated request. Empty actors are ignored.
func WithActor(req *http.Request, actor string) *http.Request {
	if actor == "" {
		return req
	}
	return req.WithContext(requestcontext.WithActor(req.Context(), id.ActorID(actor)))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
