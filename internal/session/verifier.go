package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ansoraGROUP/dupaboard/internal/supabase"
)

// ErrInvalidSession means the token does not identify a user.
var ErrInvalidSession = errors.New("invalid session")

// Verifier resolves an access token to its user.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*User, error)
}

// Refresher trades a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// PlatformVerifier asks the platform auth service who owns a token. It also
// performs refreshes, which always go through the platform.
type PlatformVerifier struct {
	client *supabase.Client
}

// NewPlatformVerifier expects a client built with the anon key.
func NewPlatformVerifier(client *supabase.Client) *PlatformVerifier {
	return &PlatformVerifier{client: client}
}

func (v *PlatformVerifier) Verify(ctx context.Context, accessToken string) (*User, error) {
	u, err := v.client.WithAccessToken(accessToken).GetUser(ctx)
	if err != nil {
		if apiErr, ok := supabase.AsError(err); ok && apiErr.Status < 500 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, apiErr)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.ID == "" {
		return nil, ErrInvalidSession
	}
	return &User{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (v *PlatformVerifier) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	s, err := v.client.RefreshSession(ctx, refreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh session: %w", err)
	}
	if s.AccessToken == "" {
		return Tokens{}, fmt.Errorf("refresh session: %w", ErrInvalidSession)
	}
	return Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}, nil
}

// JWTVerifier checks tokens locally with the platform's HS256 secret, the
// same check the database applies when it reads request.jwt.claims.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, accessToken string) (*User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidSession)
	}
	if claims.Role != "authenticated" {
		return nil, fmt.Errorf("%w: role %q is not a user session", ErrInvalidSession, claims.Role)
	}
	return &User{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}
