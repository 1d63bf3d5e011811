package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// User is the subset of the GoTrue user object the dashboard reads.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Session is the GoTrue token response.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// GetUser resolves the user that owns the client's bearer token.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var u User
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user"}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AdminCreateUserParams mirrors the GoTrue admin create-user body.
type AdminCreateUserParams struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// AdminCreateUser creates a user through the admin API. The client must
// carry the service-role key.
func (c *Client) AdminCreateUser(ctx context.Context, params AdminCreateUserParams) (*User, error) {
	var u User
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/admin/users",
		body:   params,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
