package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ansoraGROUP/dupaboard/internal/models"
)

// handleListTasks lists tasks in the caller's own projects.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	store, user := s.sessionStore(r)

	projects, err := store.ListProjects(r.Context(), user.ID)
	if err != nil {
		storeError(w, r, "list", "tasks", err)
		return
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}

	tasks, err := store.ListTasks(r.Context(), ids)
	if err != nil {
		storeError(w, r, "list", "tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleCreateTask adds a task to one of the caller's projects.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTask(w, r)
	if !ok {
		return
	}
	if req.ProjectID == nil {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	store, user := s.sessionStore(r)
	if _, err := store.GetProject(r.Context(), user.ID, *req.ProjectID); err != nil {
		storeError(w, r, "find", "project", err)
		return
	}

	task, err := store.CreateTask(r.Context(), req)
	if err != nil {
		storeError(w, r, "create", "task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleListAllTasks serves every task through the privileged store,
// regardless of who asks.
func (s *Server) handleListAllTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.factory.Privileged().ListTasks(r.Context(), nil)
	if err != nil {
		storeError(w, r, "list", "tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTaskPrivileged(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTask(w, r)
	if !ok {
		return
	}
	task, err := s.factory.Privileged().CreateTask(r.Context(), req)
	if err != nil {
		storeError(w, r, "create", "task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func decodeTask(w http.ResponseWriter, r *http.Request) (models.CreateTaskRequest, bool) {
	var req models.CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return req, false
	}
	if err := req.Normalize(); err != nil {
		storeError(w, r, "create", "task", err)
		return req, false
	}
	ids := []struct {
		field string
		value *string
	}{
		{"project_id", req.ProjectID},
		{"assigned_to", req.AssignedTo},
	}
	for _, id := range ids {
		if id.value == nil {
			continue
		}
		if _, err := uuid.Parse(*id.value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+id.field)
			return req, false
		}
	}
	return req, true
}
