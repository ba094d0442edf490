package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"

	"github.com/sirupsen/logrus"
)

type authContextKey struct{}

// AuthMiddleware resolves the bearer token into a session. Protected
// endpoints without a valid session get 401 before reaching the handler.
func AuthMiddleware(auth store.AuthStore, logger logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication_required", "missing session token")
			return
		}
		session, err := auth.GetSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "session_expired", "session is invalid or expired")
				return
			}
			logger.WithError(err).Error("session lookup failed")
			writeError(w, http.StatusServiceUnavailable, "unavailable", "authentication is temporarily unavailable")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (models.Session, bool) {
	session, ok := ctx.Value(authContextKey{}).(models.Session)
	return session, ok
}

// actorFromRequest is the session state handed to the workflow engine. A
// request that reached a handler without a session is anonymous.
func actorFromRequest(r *http.Request) models.SessionState {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		return models.AnonymousState()
	}
	return models.AuthenticatedState(session)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/login", "/api/auth/logout":
		return r.Method == http.MethodPost
	default:
		return r.Method == http.MethodOptions
	}
}
