// Package repository is the server-side data access layer. Every request
// gets a Store from a Factory: either scoped to the caller's session, so the
// platform's row policies apply, or privileged, which bypasses them.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/session"
)

var (
	// ErrNotFound means the filtered set was empty: the row does not exist
	// or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means a row policy rejected the write.
	ErrForbidden = errors.New("forbidden by row policy")
	// ErrConflict covers unique and foreign key violations.
	ErrConflict = errors.New("conflicts with existing data")
	// ErrInvalid covers not-null, check and type violations.
	ErrInvalid = errors.New("violates a column constraint")
)

// Store is the set of data operations the dashboard performs.
type Store interface {
	// ListProjects returns ownerID's projects, newest first.
	ListProjects(ctx context.Context, ownerID string) ([]models.Project, error)
	// AllProjects ignores ownership; only meaningful on a privileged store.
	AllProjects(ctx context.Context) ([]models.Project, error)
	// GetProject returns ErrNotFound unless ownerID owns project id.
	GetProject(ctx context.Context, ownerID, id string) (*models.Project, error)
	CreateProject(ctx context.Context, ownerID string, req models.CreateProjectRequest) (*models.Project, error)
	// UpdateProject and DeleteProject return ErrNotFound when no row has
	// both the id and the owner.
	UpdateProject(ctx context.Context, ownerID, id string, req models.UpdateProjectRequest) (*models.Project, error)
	DeleteProject(ctx context.Context, ownerID, id string) error

	// ListTasks returns tasks in the given projects, newest first. A nil
	// slice lists every visible task; an empty one lists none.
	ListTasks(ctx context.Context, projectIDs []string) ([]models.Task, error)
	CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error)

	UpsertProfile(ctx context.Context, p models.Profile) error
}

// Factory hands out stores. The service-role credential it holds never
// leaves the process.
type Factory interface {
	ForSession(accessToken string, user *session.User) Store
	Privileged() Store
	// Ping reports whether the back end is reachable.
	Ping(ctx context.Context) error
}

// classified wraps a back-end error with one of the sentinel kinds while
// keeping the original text for logs.
func classified(kind error, err error) error {
	return fmt.Errorf("%w: %v", kind, err)
}

// constraintKind maps a SQLSTATE (or PostgREST code) to a sentinel.
func constraintKind(code string) error {
	switch code {
	case "42501":
		return ErrForbidden
	case "23505", "23503":
		return ErrConflict
	case "23502", "23514", "22P02", "PGRST102", "PGRST204":
		return ErrInvalid
	}
	return nil
}
