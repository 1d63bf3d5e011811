package models

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task is a row of public.tasks.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	ProjectID   *string    `json:"project_id"`
	AssignedTo  *string    `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
	ProjectID   *string    `json:"project_id,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
}

// Normalize trims the title, defaults the status and rejects values the
// tasks check constraint would refuse.
func (r *CreateTaskRequest) Normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return invalid("title is required")
	}
	if r.Status == "" {
		r.Status = TaskStatusTodo
	}
	if !r.Status.Valid() {
		return invalid("status must be one of: todo, in_progress, done")
	}
	return nil
}
