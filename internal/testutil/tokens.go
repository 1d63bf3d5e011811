package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecret is long enough to pass config validation.
const JWTSecret = "test-jwt-secret-that-is-at-least-32-chars"

// SignToken returns an HS256 access token shaped like the platform's.
func SignToken(secret, userID, email, role string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"aud":   "authenticated",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"sub":   userID,
		"email": email,
		"role":  role,
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return signed
}
