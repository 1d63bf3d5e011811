package models

import "time"

// Profile mirrors an auth user; rows are created by the handle_new_user trigger.
type Profile struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Comment is declared in the schema; no route reads or writes it yet.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectMember grants a profile visibility of a project through RLS.
type ProjectMember struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}
