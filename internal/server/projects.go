package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ansoraGROUP/dupaboard/internal/middleware"
	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
	"github.com/ansoraGROUP/dupaboard/internal/session"
)

// sessionStore returns the caller's session-scoped store. Only valid
// behind SessionAuth.
func (s *Server) sessionStore(r *http.Request) (repository.Store, *session.User) {
	user := middleware.GetUser(r)
	return s.factory.ForSession(session.AccessTokenFrom(r.Context()), user), user
}

// projectID reads and validates the {id} path segment.
func projectID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "project id is required")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return "", false
	}
	return id, true
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	store, user := s.sessionStore(r)
	projects, err := store.ListProjects(r.Context(), user.ID)
	if err != nil {
		storeError(w, r, "list", "projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Normalize(); err != nil {
		storeError(w, r, "create", "project", err)
		return
	}

	store, user := s.sessionStore(r)
	project, err := store.CreateProject(r.Context(), user.ID, req)
	if err != nil {
		storeError(w, r, "create", "project", err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	var req models.UpdateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Normalize(); err != nil {
		storeError(w, r, "update", "project", err)
		return
	}

	store, user := s.sessionStore(r)
	project, err := store.UpdateProject(r.Context(), user.ID, id, req)
	if err != nil {
		storeError(w, r, "update", "project", err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	store, user := s.sessionStore(r)
	if err := store.DeleteProject(r.Context(), user.ID, id); err != nil {
		storeError(w, r, "delete", "project", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted successfully"})
}

func (s *Server) handleMissingProjectID(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, "project id is required")
}
