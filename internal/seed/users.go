package seed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/ansoraGROUP/dupaboard/internal/supabase"
)

// UserCreator registers an auth user and returns its id.
type UserCreator interface {
	CreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (string, error)
}

// PlatformUsers creates users through the auth admin API. The client must
// carry the service-role key.
type PlatformUsers struct {
	client *supabase.Client
}

func NewPlatformUsers(client *supabase.Client) *PlatformUsers {
	return &PlatformUsers{client: client}
}

func (p *PlatformUsers) CreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (string, error) {
	u, err := p.client.AdminCreateUser(ctx, supabase.AdminCreateUserParams{
		Email:        email,
		Password:     password,
		EmailConfirm: true,
		UserMetadata: metadata,
	})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// DatabaseUsers inserts straight into auth.users with a bcrypt hash, the
// format the auth service verifies at sign-in. The handle_new_user trigger
// creates the profile row.
type DatabaseUsers struct {
	pool *pgxpool.Pool
}

func NewDatabaseUsers(pool *pgxpool.Pool) *DatabaseUsers {
	return &DatabaseUsers{pool: pool}
}

func (d *DatabaseUsers) CreateUser(ctx context.Context, email, password string, metadata map[string]interface{}) (string, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode user metadata: %w", err)
	}

	var id string
	err = d.pool.QueryRow(ctx,
		`INSERT INTO auth.users (id, email, encrypted_password, email_confirmed_at, raw_user_meta_data, raw_app_meta_data, role, aud, created_at, updated_at)
		 VALUES (gen_random_uuid(), $1, $2, NOW(), $3::jsonb, '{"provider":"email","providers":["email"]}'::jsonb, 'authenticated', 'authenticated', NOW(), NOW())
		 RETURNING id::text`,
		email, hash, string(meta),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert auth user: %w", err)
	}
	return id, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
