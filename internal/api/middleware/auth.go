package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"oj_sync/internal/app/service"
	"oj_sync/internal/common"
	"oj_sync/internal/common/security"
	"oj_sync/internal/domain/model"
)

type contextKey string

const actorCtxKey contextKey = "actor"

// Authenticator rejects requests without a valid bearer token and stores
// the caller as a service.Actor. It must run after jwtauth.Verifier.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if errors.Is(err, jwtauth.ErrNoTokenFound) {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			}
			return
		}
		if token == nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		userID, err := security.GetUserIDFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}
		role, err := security.GetUserRoleFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}

		ctx := WithActor(r.Context(), service.Actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFromContext(r.Context())
		if !ok || a.Role != model.RoleAdmin {
			common.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithActor(ctx context.Context, a service.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, a)
}

// ActorFromContext returns the caller stored by Authenticator.
func ActorFromContext(ctx context.Context) (service.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey).(service.Actor)
	return a, ok
}
