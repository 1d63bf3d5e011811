package session

import "context"

// User is the authenticated caller of a request.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type contextKey string

const (
	contextUser  contextKey = "session_user"
	contextToken contextKey = "session_token"
)

// WithUser stores the caller and its access token in ctx.
func WithUser(ctx context.Context, u *User, accessToken string) context.Context {
	ctx = context.WithValue(ctx, contextUser, u)
	return context.WithValue(ctx, contextToken, accessToken)
}

// UserFrom returns the caller stored by WithUser, or nil.
func UserFrom(ctx context.Context) *User {
	u, _ := ctx.Value(contextUser).(*User)
	return u
}

func AccessTokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(contextToken).(string)
	return t
}
