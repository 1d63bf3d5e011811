// Package seed creates a demo account with one project and two tasks.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
)

// Options describe the demo account.
type Options struct {
	Email     string
	Password  string
	Name      string
	AvatarURL string
}

func DefaultOptions() Options {
	return Options{
		Email:     "demo@example.com",
		Password:  "demo123",
		Name:      "Demo User",
		AvatarURL: "https://i.pravatar.cc/150?u=demo",
	}
}

// Result lists what was created.
type Result struct {
	UserID    string
	ProjectID string
	TaskIDs   []string
}

// Run creates the demo data through store, which must be privileged.
// Steps are not atomic: on failure the rows written by earlier steps stay
// and the returned error names the step that failed.
func Run(ctx context.Context, users UserCreator, store repository.Store, opts Options) (*Result, error) {
	res := &Result{}

	userID, err := users.CreateUser(ctx, opts.Email, opts.Password, map[string]interface{}{"name": opts.Name})
	if err != nil {
		return res, fmt.Errorf("create user: %w", err)
	}
	res.UserID = userID
	slog.Info("Created user", "id", userID, "email", opts.Email)

	profile := models.Profile{ID: userID, Name: &opts.Name}
	if opts.AvatarURL != "" {
		profile.AvatarURL = &opts.AvatarURL
	}
	if err := store.UpsertProfile(ctx, profile); err != nil {
		return res, fmt.Errorf("create profile: %w", err)
	}
	slog.Info("Created profile", "id", userID)

	project, err := store.CreateProject(ctx, userID, models.CreateProjectRequest{
		Name:        "Demo Project",
		Description: "This is a seeded demo project",
	})
	if err != nil {
		return res, fmt.Errorf("create project: %w", err)
	}
	res.ProjectID = project.ID
	slog.Info("Created project", "id", project.ID)

	for _, task := range defaultTasks(project.ID, userID) {
		created, err := store.CreateTask(ctx, task)
		if err != nil {
			return res, fmt.Errorf("create task %q: %w", task.Title, err)
		}
		res.TaskIDs = append(res.TaskIDs, created.ID)
	}
	slog.Info("Created tasks", "count", len(res.TaskIDs))

	return res, nil
}

func defaultTasks(projectID, userID string) []models.CreateTaskRequest {
	return []models.CreateTaskRequest{
		{
			Title:       "Set up project",
			Description: "Initialize the server and the data platform",
			Status:      models.TaskStatusDone,
			ProjectID:   &projectID,
			AssignedTo:  &userID,
		},
		{
			Title:       "Implement Auth",
			Description: "Add session cookies and the session guard",
			Status:      models.TaskStatusTodo,
			ProjectID:   &projectID,
			AssignedTo:  &userID,
		},
	}
}
