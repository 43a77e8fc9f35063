package httpserver

import (
	"errors"
	"net/http"

	"db_changelog_migrator/internal/auth"
)

type AuthMiddleware struct {
	authenticator auth.Authenticator
	logger        requestLogger
}

func NewAuthMiddleware(authenticator auth.Authenticator, logger requestLogger) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator, logger: logger}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authenticator.Authenticate(r)
		if err != nil || principal == nil {
			if err != nil && !errors.Is(err, auth.ErrUnauthorized) {
				m.logger.Error("auth error", "error", err)
			}
			m.logger.Info("access denied", "path", r.URL.Path, "method", r.Method)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		noteSubject(r.Context(), principal.Subject)
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}
