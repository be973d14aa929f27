package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "golden/pkg/domain"
	request "golden/pkg/platform/middleware/request"
	"golden/pkg/requestcontext"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims the middleware needs from a validated token.
type JWTClaims struct {
	Actor string
	Role  string
}

type contextKeyRole struct{}

var ContextKeyRole = contextKeyRole{}

// GetRole retrieves the authenticated role from the context.
// Handlers pass it explicitly into service calls; services never read it.
func GetRole(ctx context.Context) id.Role {
	role, ok := ctx.Value(ContextKeyRole).(id.Role)
	if !ok {
		return ""
	}
	return role
}

// WithRole injects a role, for handler tests that skip the middleware.
func WithRole(ctx context.Context, role id.Role) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and stores actor and role in the
// request context. Tokens carrying an unknown role are rejected here so no
// downstream code sees one.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			role, err := id.ParseRole(claims.Role)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - unknown role",
					"role", claims.Role,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Unknown role")
				return
			}

			ctx = requestcontext.WithActor(ctx, id.ActorID(claims.Actor))
			ctx = WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
