package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ansoraGROUP/dupaboard/internal/session"
)

// SessionAuth guards owner-scoped routes. It reads the session cookies,
// refreshes an expired access token when a refresh token is available,
// verifies the token and stores the caller in the request context.
type SessionAuth struct {
	verifier      session.Verifier
	refresher     session.Refresher
	secureCookies bool
	now           func() time.Time
}

func NewSessionAuth(verifier session.Verifier, refresher session.Refresher, secureCookies bool) *SessionAuth {
	return &SessionAuth{
		verifier:      verifier,
		refresher:     refresher,
		secureCookies: secureCookies,
		now:           time.Now,
	}
}

func (m *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens := session.Read(r)
		if tokens.AccessToken == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}

		if tokens.RefreshToken != "" && m.refresher != nil && session.Expired(tokens.AccessToken, m.now()) {
			refreshed, err := m.refresher.Refresh(r.Context(), tokens.RefreshToken)
			if err != nil {
				slog.Info("Session refresh failed", "path", r.URL.Path, "error", err)
				session.Clear(w, m.secureCookies)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
				return
			}
			session.Set(w, refreshed, m.secureCookies)
			tokens = refreshed
		}

		user, err := m.verifier.Verify(r.Context(), tokens.AccessToken)
		if err != nil || user == nil || user.ID == "" {
			if err != nil && !errors.Is(err, session.ErrInvalidSession) {
				slog.Error("Session verification failed", "path", r.URL.Path, "error", err)
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
			return
		}

		ctx := session.WithUser(r.Context(), user, tokens.AccessToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUser returns the caller stored by SessionAuth.
func GetUser(r *http.Request) *session.User {
	return session.UserFrom(r.Context())
}

// GetUserID returns the caller's id, or "" outside SessionAuth.
func GetUserID(r *http.Request) string {
	if u := GetUser(r); u != nil {
		return u.ID
	}
	return ""
}
