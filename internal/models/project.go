package models

import (
	"strings"
	"time"
)

// Project is a row of public.projects.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *CreateProjectRequest) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return invalid("name is required")
	}
	return nil
}

// UpdateProjectRequest carries the columns a PATCH may overwrite. Nil fields are left alone.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r *UpdateProjectRequest) Normalize() error {
	if r.Name == nil && r.Description == nil {
		return invalid("nothing to update")
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return invalid("name cannot be empty")
		}
		r.Name = &name
	}
	return nil
}

// Columns returns the update as a column map, the shape both back ends write.
func (r *UpdateProjectRequest) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 2)
	if r.Name != nil {
		cols["name"] = *r.Name
	}
	if r.Description != nil {
		cols["description"] = *r.Description
	}
	return cols
}
