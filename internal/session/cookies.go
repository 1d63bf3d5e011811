// Package session keeps the platform session in two HttpOnly cookies and
// resolves it to a user.
package session

import "net/http"

const (
	AccessCookie  = "sb-access-token"
	RefreshCookie = "sb-refresh-token"
)

// Tokens is the pair of opaque credentials the platform issues at sign-in.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Read returns whatever session cookies the request carries.
func Read(r *http.Request) Tokens {
	var t Tokens
	if c, err := r.Cookie(AccessCookie); err == nil {
		t.AccessToken = c.Value
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		t.RefreshToken = c.Value
	}
	return t
}

// Set writes both cookies. They carry no expiry and live for the browser session.
func Set(w http.ResponseWriter, t Tokens, secure bool) {
	http.SetCookie(w, cookie(AccessCookie, t.AccessToken, secure))
	http.SetCookie(w, cookie(RefreshCookie, t.RefreshToken, secure))
}

// Clear expires both cookies.
func Clear(w http.ResponseWriter, secure bool) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c := cookie(name, "", secure)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func cookie(name, value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
