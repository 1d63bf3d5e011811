package repository

import (
	"context"
	"net/http"

	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/session"
	"github.com/ansoraGROUP/dupaboard/internal/supabase"
)

// RESTFactory reaches the platform through its HTTP APIs.
type RESTFactory struct {
	anon    *supabase.Client
	service *supabase.Client
}

func NewRESTFactory(baseURL, anonKey, serviceRoleKey string, httpClient *http.Client) *RESTFactory {
	return &RESTFactory{
		anon:    supabase.NewClient(baseURL, anonKey, httpClient),
		service: supabase.NewClient(baseURL, serviceRoleKey, httpClient),
	}
}

// ForSession authenticates as the user, so the platform applies row policies.
func (f *RESTFactory) ForSession(accessToken string, _ *session.User) Store {
	return &restStore{client: f.anon.WithAccessToken(accessToken)}
}

func (f *RESTFactory) Privileged() Store {
	return &restStore{client: f.service}
}

func (f *RESTFactory) Ping(ctx context.Context) error {
	return f.anon.Ping(ctx)
}

// Anon exposes the public client for session verification and refresh.
func (f *RESTFactory) Anon() *supabase.Client {
	return f.anon
}

// Service exposes the privileged client for admin calls (user creation).
func (f *RESTFactory) Service() *supabase.Client {
	return f.service
}

type restStore struct {
	client *supabase.Client
}

func (s *restStore) ListProjects(ctx context.Context, ownerID string) ([]models.Project, error) {
	projects := []models.Project{}
	err := s.client.From("projects").
		Select("*").
		Eq("owner_id", ownerID).
		Order("created_at", false).
		Execute(ctx, &projects)
	if err != nil {
		return nil, restError(err)
	}
	return projects, nil
}

func (s *restStore) AllProjects(ctx context.Context) ([]models.Project, error) {
	projects := []models.Project{}
	if err := s.client.From("projects").Order("created_at", false).Execute(ctx, &projects); err != nil {
		return nil, restError(err)
	}
	return projects, nil
}

func (s *restStore) GetProject(ctx context.Context, ownerID, id string) (*models.Project, error) {
	var p models.Project
	err := s.client.From("projects").
		Select("*").
		Eq("id", id).
		Eq("owner_id", ownerID).
		Single().
		Execute(ctx, &p)
	if err != nil {
		return nil, restError(err)
	}
	return &p, nil
}

func (s *restStore) CreateProject(ctx context.Context, ownerID string, req models.CreateProjectRequest) (*models.Project, error) {
	var p models.Project
	row := map[string]interface{}{
		"name":        req.Name,
		"description": req.Description,
		"owner_id":    ownerID,
	}
	if err := s.client.From("projects").Single().Insert(ctx, row, &p); err != nil {
		return nil, restError(err)
	}
	return &p, nil
}

func (s *restStore) UpdateProject(ctx context.Context, ownerID, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	var p models.Project
	err := s.client.From("projects").
		Eq("id", id).
		Eq("owner_id", ownerID).
		Single().
		Update(ctx, req.Columns(), &p)
	if err != nil {
		return nil, restError(err)
	}
	return &p, nil
}

func (s *restStore) DeleteProject(ctx context.Context, ownerID, id string) error {
	var deleted []models.Project
	err := s.client.From("projects").
		Select("id").
		Eq("id", id).
		Eq("owner_id", ownerID).
		Delete(ctx, &deleted)
	if err != nil {
		return restError(err)
	}
	if len(deleted) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *restStore) ListTasks(ctx context.Context, projectIDs []string) ([]models.Task, error) {
	tasks := []models.Task{}
	if projectIDs != nil && len(projectIDs) == 0 {
		return tasks, nil
	}

	q := s.client.From("tasks").Order("created_at", false)
	if projectIDs != nil {
		q = q.In("project_id", projectIDs)
	}
	if err := q.Execute(ctx, &tasks); err != nil {
		return nil, restError(err)
	}
	return tasks, nil
}

func (s *restStore) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	var t models.Task
	if err := s.client.From("tasks").Single().Insert(ctx, req, &t); err != nil {
		return nil, restError(err)
	}
	return &t, nil
}

func (s *restStore) UpsertProfile(ctx context.Context, p models.Profile) error {
	row := map[string]interface{}{
		"id":         p.ID,
		"name":       p.Name,
		"avatar_url": p.AvatarURL,
	}
	if err := s.client.From("profiles").Upsert(ctx, row, nil); err != nil {
		return restError(err)
	}
	return nil
}

func restError(err error) error {
	apiErr, ok := supabase.AsError(err)
	if !ok {
		return err
	}
	if apiErr.NoRows() {
		return classified(ErrNotFound, err)
	}
	if kind := constraintKind(apiErr.Code); kind != nil {
		return classified(kind, err)
	}
	if apiErr.Status == http.StatusForbidden {
		return classified(ErrForbidden, err)
	}
	return err
}
