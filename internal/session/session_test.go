package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ansoraGROUP/dupaboard/internal/supabase"
	"github.com/ansoraGROUP/dupaboard/internal/testutil"
)

// -----------------------------------------------------------------------
// Cookies

func TestSetAndRead(t *testing.T) {
	rec := httptest.NewRecorder()
	Set(rec, Tokens{AccessToken: "a", RefreshToken: "r"}, true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || !c.Secure || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %s has wrong attributes: %+v", c.Name, c)
		}
		if c.MaxAge != 0 || !c.Expires.IsZero() {
			t.Errorf("cookie %s should be a session cookie", c.Name)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	got := Read(req)
	if got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("Read = %+v", got)
	}
}

func TestSet_InsecureByDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	Set(rec, Tokens{AccessToken: "a", RefreshToken: "r"}, false)
	for _, c := range rec.Result().Cookies() {
		if c.Secure {
			t.Errorf("cookie %s should not be Secure", c.Name)
		}
	}
}

func TestClear(t *testing.T) {
	rec := httptest.NewRecorder()
	Clear(rec, false)
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %s not expired: %+v", c.Name, c)
		}
	}
}

func TestRead_Missing(t *testing.T) {
	got := Read(httptest.NewRequest(http.MethodGet, "/", nil))
	if got.AccessToken != "" || got.RefreshToken != "" {
		t.Errorf("Read = %+v, want empty", got)
	}
}

// -----------------------------------------------------------------------
// Claims

func TestExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"fresh", testutil.SignToken("any-secret", "u", "e", "authenticated", time.Hour), false},
		{"expired", testutil.SignToken("any-secret", "u", "e", "authenticated", -time.Minute), true},
		{"about to expire", testutil.SignToken("any-secret", "u", "e", "authenticated", 2*time.Second), true},
		{"opaque", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expired(tt.token, now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeekClaims_IgnoresSignature(t *testing.T) {
	token := testutil.SignToken("some-other-secret", "user-1", "a@example.com", "authenticated", time.Hour)
	claims, err := PeekClaims(token)
	if err != nil {
		t.Fatalf("PeekClaims: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "a@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

// -----------------------------------------------------------------------
// Verifiers

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(testutil.JWTSecret)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", testutil.SignToken(testutil.JWTSecret, "user-1", "a@example.com", "authenticated", time.Hour), false},
		{"wrong secret", testutil.SignToken("wrong-secret-wrong-secret-wrong-secret", "user-1", "a@example.com", "authenticated", time.Hour), true},
		{"expired", testutil.SignToken(testutil.JWTSecret, "user-1", "a@example.com", "authenticated", -time.Hour), true},
		{"anon role", testutil.SignToken(testutil.JWTSecret, "user-1", "", "anon", time.Hour), true},
		{"no subject", testutil.SignToken(testutil.JWTSecret, "", "", "authenticated", time.Hour), true},
		{"garbage", "abc.def.ghi", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSession) {
					t.Errorf("err = %v, want ErrInvalidSession", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if u.ID != "user-1" || u.Email != "a@example.com" {
				t.Errorf("user = %+v", u)
			}
		})
	}
}

func TestPlatformVerifier(t *testing.T) {
	fp := testutil.NewFakePlatform()
	defer fp.Close()
	v := NewPlatformVerifier(supabase.NewClient(fp.URL(), testutil.AnonKey, nil))

	id, token := fp.AddUser("a@example.com")
	u, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if u.ID != id {
		t.Errorf("user id = %q, want %q", u.ID, id)
	}

	if _, err := v.Verify(context.Background(), "unknown"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("unknown token err = %v, want ErrInvalidSession", err)
	}

	rt := fp.IssueRefreshToken(id)
	tokens, err := v.Refresh(context.Background(), rt)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if u, err := v.Verify(context.Background(), tokens.AccessToken); err != nil || u.ID != id {
		t.Errorf("refreshed token verify = %+v, %v", u, err)
	}
}

func TestPlatformVerifier_PlatformDown(t *testing.T) {
	fp := testutil.NewFakePlatform()
	defer fp.Close()
	fp.AuthStatus = http.StatusBadGateway
	v := NewPlatformVerifier(supabase.NewClient(fp.URL(), testutil.AnonKey, nil))

	_, token := fp.AddUser("a@example.com")
	_, err := v.Verify(context.Background(), token)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrInvalidSession) {
		t.Error("platform outage should not be reported as an invalid session")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithUser(context.Background(), &User{ID: "u"}, "tok")
	if UserFrom(ctx).ID != "u" || AccessTokenFrom(ctx) != "tok" {
		t.Error("context values not stored")
	}
	if UserFrom(context.Background()) != nil {
		t.Error("empty context should have no user")
	}
}
