package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ansoraGROUP/dupaboard/internal/database"
	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/session"
)

// PostgresFactory talks to the platform database directly. Session stores
// run every statement under the authenticated role with the caller's claims,
// so the same row policies apply as behind the REST API.
type PostgresFactory struct {
	pool *pgxpool.Pool
}

func NewPostgresFactory(pool *pgxpool.Pool) *PostgresFactory {
	return &PostgresFactory{pool: pool}
}

func (f *PostgresFactory) ForSession(_ string, user *session.User) Store {
	return &pgStore{
		pool:   f.pool,
		role:   database.RoleAuthenticated,
		claims: database.UserClaims(user.ID, user.Email),
	}
}

func (f *PostgresFactory) Privileged() Store {
	return &pgStore{pool: f.pool, role: database.RoleServiceRole}
}

func (f *PostgresFactory) Ping(ctx context.Context) error {
	return f.pool.Ping(ctx)
}

type pgStore struct {
	pool   *pgxpool.Pool
	role   string
	claims database.Claims
}

const projectColumns = `id::text, name, COALESCE(description, ''), COALESCE(owner_id::text, ''), COALESCE(created_at, NOW())`

const taskColumns = `id::text, title, COALESCE(description, ''), COALESCE(status, 'todo'), project_id::text, assigned_to::text, COALESCE(created_at, NOW())`

func scanProject(row pgx.Row) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	return p, err
}

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.ProjectID, &t.AssignedTo, &t.CreatedAt)
	t.Status = models.TaskStatus(status)
	return t, err
}

func (s *pgStore) ListProjects(ctx context.Context, ownerID string) ([]models.Project, error) {
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM public.projects WHERE owner_id = $1::uuid ORDER BY created_at DESC`, ownerID)
}

func (s *pgStore) AllProjects(ctx context.Context) ([]models.Project, error) {
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM public.projects ORDER BY created_at DESC`)
}

func (s *pgStore) queryProjects(ctx context.Context, sql string, args ...interface{}) ([]models.Project, error) {
	projects, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) ([]models.Project, error) {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Project, error) {
			return scanProject(row)
		})
	})
	if err != nil {
		return nil, pgError(fmt.Errorf("list projects: %w", err))
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (s *pgStore) GetProject(ctx context.Context, ownerID, id string) (*models.Project, error) {
	p, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) (models.Project, error) {
		return scanProject(tx.QueryRow(ctx,
			`SELECT `+projectColumns+` FROM public.projects WHERE id = $1::uuid AND owner_id = $2::uuid`,
			id, ownerID))
	})
	if err != nil {
		return nil, pgError(fmt.Errorf("get project: %w", err))
	}
	return &p, nil
}

func (s *pgStore) CreateProject(ctx context.Context, ownerID string, req models.CreateProjectRequest) (*models.Project, error) {
	p, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) (models.Project, error) {
		return scanProject(tx.QueryRow(ctx,
			`INSERT INTO public.projects (name, description, owner_id)
			 VALUES ($1, $2, $3::uuid)
			 RETURNING `+projectColumns,
			req.Name, req.Description, ownerID))
	})
	if err != nil {
		return nil, pgError(fmt.Errorf("insert project: %w", err))
	}
	return &p, nil
}

func (s *pgStore) UpdateProject(ctx context.Context, ownerID, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	var sets []string
	args := []interface{}{id, ownerID}
	if req.Name != nil {
		args = append(args, *req.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if req.Description != nil {
		args = append(args, *req.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	p, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) (models.Project, error) {
		return scanProject(tx.QueryRow(ctx,
			`UPDATE public.projects SET `+strings.Join(sets, ", ")+`
			 WHERE id = $1::uuid AND owner_id = $2::uuid
			 RETURNING `+projectColumns,
			args...))
	})
	if err != nil {
		return nil, pgError(fmt.Errorf("update project: %w", err))
	}
	return &p, nil
}

func (s *pgStore) DeleteProject(ctx context.Context, ownerID, id string) error {
	n, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) (int64, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM public.projects WHERE id = $1::uuid AND owner_id = $2::uuid`, id, ownerID)
		return tag.RowsAffected(), err
	})
	if err != nil {
		return pgError(fmt.Errorf("delete project: %w", err))
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) ListTasks(ctx context.Context, projectIDs []string) ([]models.Task, error) {
	if projectIDs != nil && len(projectIDs) == 0 {
		return []models.Task{}, nil
	}

	sql := `SELECT ` + taskColumns + ` FROM public.tasks`
	var args []interface{}
	if projectIDs != nil {
		sql += ` WHERE project_id::text = ANY($1::text[])`
		args = append(args, projectIDs)
	}
	sql += ` ORDER BY created_at DESC`

	tasks, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) ([]models.Task, error) {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Task, error) {
			return scanTask(row)
		})
	})
	if err != nil {
		return nil, pgError(fmt.Errorf("list tasks: %w", err))
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (s *pgStore) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	t, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) (models.Task, error) {
		return scanTask(tx.QueryRow(ctx,
			`INSERT INTO public.tasks (title, description, status, project_id, assigned_to)
			 VALUES ($1, NULLIF($2, ''), $3, $4::uuid, $5::uuid)
			 RETURNING `+taskColumns,
			req.Title, req.Description, string(req.Status), req.ProjectID, req.AssignedTo))
	})
	if err != nil {
		return nil, pgError(fmt.Errorf("insert task: %w", err))
	}
	return &t, nil
}

func (s *pgStore) UpsertProfile(ctx context.Context, p models.Profile) error {
	_, err := database.ExecuteWithRLS(ctx, s.pool, s.role, s.claims, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx,
			`INSERT INTO public.profiles (id, name, avatar_url)
			 VALUES ($1::uuid, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url`,
			p.ID, p.Name, p.AvatarURL)
		return struct{}{}, err
	})
	if err != nil {
		return pgError(fmt.Errorf("upsert profile: %w", err))
	}
	return nil
}

func pgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return classified(ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind := constraintKind(pgErr.Code); kind != nil {
			return classified(kind, err)
		}
	}
	return err
}
