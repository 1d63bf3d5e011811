package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a platform access token.
type Claims struct {
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	SessionID    string                 `json:"session_id"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// expiryLeeway refreshes slightly early so the token does not lapse in flight.
const expiryLeeway = 10 * time.Second

// PeekClaims decodes a token without checking its signature. The result is
// only good for routing decisions such as "refresh first"; it never
// authenticates anyone.
func PeekClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}

// Expired reports whether token carries an exp claim that has passed at now.
// Opaque or undecodable tokens report false and are left to the verifier.
func Expired(token string, now time.Time) bool {
	claims, err := PeekClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !now.Add(expiryLeeway).Before(claims.ExpiresAt.Time)
}
