package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ansoraGROUP/dupaboard/internal/middleware"
	"github.com/ansoraGROUP/dupaboard/internal/session"
)

type callbackRequest struct {
	Session *session.Tokens `json:"session"`
}

// handleAuthCallback stores the tokens the browser obtained at sign-in as
// HttpOnly cookies. The tokens are not checked here; every guarded route
// verifies them.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Session == nil || req.Session.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "no session")
		return
	}

	session.Set(w, *req.Session, s.cfg.CookieSecure)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session.Clear(w, s.cfg.CookieSecure)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.GetUser(r))
}

// handlePublicConfig gives the browser what it needs to sign in. The
// service-role key is never part of it.
func (s *Server) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"supabase_url": s.cfg.SupabaseURL,
		"anon_key":     s.cfg.AnonKey,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.factory.Ping(ctx); err != nil {
		slog.Warn("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "data platform unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
