package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"go.uber.org/zap"
)

type contextKey string

const identityKey contextKey = "identity"

// authMiddleware accepts a bearer token in the Authorization header, or in
// the token query parameter for browsers that cannot set headers on a
// websocket upgrade. The token's user must still exist.
func authMiddleware(validator *TokenValidator, users store.UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized: token missing")
				return
			}
			identity, err := validator.Identify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized: invalid token")
				return
			}

			user, err := users.FindByID(r.Context(), identity.UserID)
			if err != nil {
				logger.Error("failed to resolve token user", zap.Int64("user_id", identity.UserID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized: unknown user")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
		})
	}
}

// adminOnly must run behind authMiddleware.
func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := r.Context().Value(identityKey).(Identity)
		if !ok || !identity.Admin {
			writeError(w, http.StatusForbidden, "Forbidden: admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func userIDFromContext(ctx context.Context) (int64, error) {
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return 0, custom_errors.ErrUnauthorized
	}
	return identity.UserID, nil
}
