package database

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	RoleAuthenticated = "authenticated"
	RoleServiceRole   = "service_role"
)

// Claims is the JSON the platform exposes to policies as request.jwt.claims.
type Claims map[string]interface{}

// UserClaims builds the claims of an authenticated user's session.
func UserClaims(userID, email string) Claims {
	return Claims{
		"sub":   userID,
		"email": email,
		"role":  RoleAuthenticated,
		"aud":   RoleAuthenticated,
	}
}

// validRoleName guards SET LOCAL ROLE, which cannot take a bind parameter.
var validRoleName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ExecuteWithRLS runs fn in a transaction that carries the caller's role and
// claims, so auth.uid() and row policies behave as they do behind the
// platform's REST API. service_role runs as the connecting user, which owns
// the tables and bypasses RLS.
func ExecuteWithRLS[T any](
	ctx context.Context,
	pool *pgxpool.Pool,
	role string,
	claims Claims,
	fn func(tx pgx.Tx) (T, error),
) (T, error) {
	var zero T

	if role != RoleServiceRole && !validRoleName.MatchString(role) {
		return zero, fmt.Errorf("invalid role name: %s", role)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if role != RoleServiceRole {
		if err := setRoleContext(ctx, tx, role, claims); err != nil {
			return zero, err
		}
	}

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func setRoleContext(ctx context.Context, tx pgx.Tx, role string, claims Claims) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL ROLE "%s"`, role)); err != nil {
		return fmt.Errorf("set role %s: %w", role, err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode jwt claims: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claimsJSON)); err != nil {
		return fmt.Errorf("set jwt claims: %w", err)
	}

	// Older policies read the per-claim settings.
	for _, key := range []string{"sub", "role", "email"} {
		v, _ := claims[key].(string)
		if v == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `SELECT set_config($1, $2, true)`, "request.jwt.claim."+key, v); err != nil {
			return fmt.Errorf("set jwt claim %s: %w", key, err)
		}
	}
	return nil
}
