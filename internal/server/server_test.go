package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ansoraGROUP/dupaboard/internal/config"
	"github.com/ansoraGROUP/dupaboard/internal/middleware"
	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
	"github.com/ansoraGROUP/dupaboard/internal/session"
	"github.com/ansoraGROUP/dupaboard/internal/testutil"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type harness struct {
	fp      *testutil.FakePlatform
	handler http.Handler
}

func newHarness(t *testing.T, taskAccess string) *harness {
	t.Helper()
	fp := testutil.NewFakePlatform()
	t.Cleanup(fp.Close)

	cfg := &config.Config{
		SupabaseURL:    fp.URL(),
		AnonKey:        testutil.AnonKey,
		ServiceRoleKey: testutil.ServiceKey,
		DataBackend:    config.BackendREST,
		TaskAccess:     taskAccess,
		MetricsEnabled: true,
	}
	factory := repository.NewRESTFactory(fp.URL(), testutil.AnonKey, testutil.ServiceKey, nil)
	verifier := session.NewPlatformVerifier(factory.Anon())

	authLimiter := middleware.NewMemoryLimiter(1000, 1000)
	apiLimiter := middleware.NewMemoryLimiter(1000, 1000)
	t.Cleanup(authLimiter.Close)
	t.Cleanup(apiLimiter.Close)

	srv := New(Deps{
		Config:      cfg,
		Factory:     factory,
		Verifier:    verifier,
		Refresher:   verifier,
		AuthLimiter: authLimiter,
		APILimiter:  apiLimiter,
	})
	return &harness{fp: fp, handler: srv.Handler()}
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.AddCookie(&http.Cookie{Name: session.AccessCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func (h *harness) createProject(t *testing.T, token, name string) models.Project {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": name, "description": "d"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[models.Project](t, rec)
}

const missingID = "00000000-0000-0000-0000-000000000000"

// ---------------------------------------------------------------------------
// Session guard
// ---------------------------------------------------------------------------

func TestGuardedRoutes_RequireSession(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	routes := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/projects", nil},
		{http.MethodPost, "/api/projects", map[string]string{"name": "x"}},
		{http.MethodPatch, "/api/projects/" + missingID, map[string]string{"name": "x"}},
		{http.MethodDelete, "/api/projects/" + missingID, nil},
		{http.MethodGet, "/api/tasks", nil},
		{http.MethodPost, "/api/tasks", map[string]string{"title": "x"}},
		{http.MethodGet, "/api/me", nil},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := h.do(t, rt.method, rt.path, "", rt.body)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rec.Code)
			}
			if msg := errorMessage(t, rec); msg != "not authenticated" {
				t.Errorf("error = %q", msg)
			}
		})
	}

	if n := h.fp.Mutations(); n != 0 {
		t.Errorf("platform saw %d mutations, want 0", n)
	}
}

func TestGuardedRoutes_InvalidSession(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	rec := h.do(t, http.MethodPost, "/api/projects", "forged-token", map[string]string{"name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "invalid session" {
		t.Errorf("error = %q", msg)
	}
	if n := h.fp.Mutations(); n != 0 {
		t.Errorf("platform saw %d mutations, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func TestProjects_CreateThenList(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")

	rec := h.do(t, http.MethodPost, "/api/projects", token, map[string]string{"name": "X", "description": "Y"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Project](t, rec)

	rec = h.do(t, http.MethodGet, "/api/projects", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	list := decode[[]models.Project](t, rec)
	if len(list) != 1 {
		t.Fatalf("got %d projects, want 1", len(list))
	}
	if list[0].ID == "" || list[0].ID != created.ID || list[0].Name != "X" || list[0].Description != "Y" {
		t.Errorf("listed = %+v", list[0])
	}
}

func TestProjects_ListEmptyIsArray(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")

	rec := h.do(t, http.MethodGet, "/api/projects", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestProjects_CreateValidation(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")

	tests := []struct {
		name    string
		body    interface{}
		wantMsg string
	}{
		{"invalid json", "{not json", "invalid request body"},
		{"empty name", map[string]string{"name": "   "}, "name is required"},
		{"missing name", map[string]string{"description": "d"}, "name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/projects", token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if msg := errorMessage(t, rec); msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
	if n := h.fp.Mutations(); n != 0 {
		t.Errorf("platform saw %d mutations, want 0", n)
	}
}

func TestProjects_OwnerIsolation(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, tokenA := h.fp.AddUser("a@example.com")
	_, tokenB := h.fp.AddUser("b@example.com")

	p := h.createProject(t, tokenA, "A's project")

	list := decode[[]models.Project](t, h.do(t, http.MethodGet, "/api/projects", tokenB, nil))
	if len(list) != 0 {
		t.Errorf("B lists %d projects, want 0", len(list))
	}

	rec := h.do(t, http.MethodPatch, "/api/projects/"+p.ID, tokenB, map[string]string{"name": "mine now"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("B update: expected 404, got %d", rec.Code)
	}
	rec = h.do(t, http.MethodDelete, "/api/projects/"+p.ID, tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("B delete: expected 404, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "project not found" {
		t.Errorf("error = %q", msg)
	}

	list = decode[[]models.Project](t, h.do(t, http.MethodGet, "/api/projects", tokenA, nil))
	if len(list) != 1 || list[0].Name != "A's project" {
		t.Errorf("A's projects = %+v", list)
	}
}

func TestProjects_Update(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")
	p := h.createProject(t, token, "before")

	rec := h.do(t, http.MethodPatch, "/api/projects/"+p.ID, token, map[string]string{"name": "after"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[models.Project](t, rec)
	if got.Name != "after" || got.Description != "d" {
		t.Errorf("updated = %+v, want description untouched", got)
	}

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{"nothing to update", "/api/projects/" + p.ID, map[string]string{}, http.StatusBadRequest},
		{"blank name", "/api/projects/" + p.ID, map[string]string{"name": " "}, http.StatusBadRequest},
		{"bad id", "/api/projects/not-a-uuid", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"missing id", "/api/projects/", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"unknown id", "/api/projects/" + missingID, map[string]string{"name": "x"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPatch, tt.path, token, tt.body)
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestProjects_Delete(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")
	p := h.createProject(t, token, "doomed")

	rec := h.do(t, http.MethodDelete, "/api/projects/"+p.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["message"]; msg != "Project deleted successfully" {
		t.Errorf("message = %q", msg)
	}

	rec = h.do(t, http.MethodDelete, "/api/projects/"+p.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodDelete, "/api/projects/"+missingID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("nonexistent id: expected 404, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodDelete, "/api/projects/", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: expected 400, got %d", rec.Code)
	}
}

func TestProjects_PlatformErrorsAreSanitized(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")
	h.fp.RESTStatus = http.StatusInternalServerError

	rec := h.do(t, http.MethodGet, "/api/projects", token, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	msg := errorMessage(t, rec)
	if msg != "failed to list projects" {
		t.Errorf("error = %q", msg)
	}
	if strings.Contains(msg, "injected") {
		t.Error("platform message leaked to the caller")
	}
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func TestTasks_ScopedToCaller(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, tokenA := h.fp.AddUser("a@example.com")
	_, tokenB := h.fp.AddUser("b@example.com")
	pa := h.createProject(t, tokenA, "A")
	pb := h.createProject(t, tokenB, "B")

	rec := h.do(t, http.MethodPost, "/api/tasks", tokenA, map[string]string{"title": "a-task", "project_id": pa.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("create task: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	task := decode[models.Task](t, rec)
	if task.Status != models.TaskStatusTodo {
		t.Errorf("status = %q, want todo", task.Status)
	}

	rec = h.do(t, http.MethodPost, "/api/tasks", tokenA, map[string]string{"title": "sneaky", "project_id": pb.ID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("task in B's project: expected 404, got %d", rec.Code)
	}

	h.do(t, http.MethodPost, "/api/tasks", tokenB, map[string]string{"title": "b-task", "project_id": pb.ID})

	listA := decode[[]models.Task](t, h.do(t, http.MethodGet, "/api/tasks", tokenA, nil))
	if len(listA) != 1 || listA[0].Title != "a-task" {
		t.Errorf("A's tasks = %+v", listA)
	}
}

func TestTasks_CreateValidation(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")
	p := h.createProject(t, token, "A")

	tests := []struct {
		name    string
		body    map[string]string
		wantMsg string
	}{
		{"no title", map[string]string{"project_id": p.ID}, "title is required"},
		{"bad status", map[string]string{"title": "t", "status": "blocked", "project_id": p.ID}, "status must be one of: todo, in_progress, done"},
		{"no project", map[string]string{"title": "t"}, "project_id is required"},
		{"bad project id", map[string]string{"title": "t", "project_id": "nope"}, "invalid project_id"},
		{"bad assignee", map[string]string{"title": "t", "project_id": p.ID, "assigned_to": "nope"}, "invalid assigned_to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/tasks", token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if msg := errorMessage(t, rec); msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestTasks_InvalidIDsReportProjectFirst(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")

	body := map[string]string{"title": "t", "project_id": "bad", "assigned_to": "also-bad"}
	for i := 0; i < 20; i++ {
		rec := h.do(t, http.MethodPost, "/api/tasks", token, body)
		if msg := errorMessage(t, rec); msg != "invalid project_id" {
			t.Fatalf("attempt %d: error = %q, want %q", i, msg, "invalid project_id")
		}
	}
}

func TestTasks_CreateLooksUpOnlyTheTargetProject(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	_, token := h.fp.AddUser("a@example.com")
	p := h.createProject(t, token, "A")
	h.createProject(t, token, "B")

	before := len(h.fp.Requests())
	rec := h.do(t, http.MethodPost, "/api/tasks", token, map[string]string{"title": "t", "project_id": p.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var lookups []testutil.RecordedRequest
	for _, req := range h.fp.Requests()[before:] {
		if req.Method == http.MethodGet && req.Path == "/rest/v1/projects" {
			lookups = append(lookups, req)
		}
	}
	if len(lookups) != 1 {
		t.Fatalf("got %d project reads, want 1", len(lookups))
	}
	if !strings.Contains(lookups[0].Query, "id=eq."+p.ID) {
		t.Errorf("project read %q is not filtered by id", lookups[0].Query)
	}

	rec = h.do(t, http.MethodPost, "/api/tasks", token, map[string]string{"title": "t", "project_id": missingID})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing project: expected 404, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "project not found" {
		t.Errorf("error = %q", msg)
	}
}

func TestTasks_PrivilegedModeIsUnscoped(t *testing.T) {
	h := newHarness(t, config.TaskAccessPrivileged)
	a, _ := h.fp.AddUser("a@example.com")
	b, _ := h.fp.AddUser("b@example.com")
	pa := h.fp.Seed("projects", map[string]interface{}{"name": "A", "owner_id": a})
	pb := h.fp.Seed("projects", map[string]interface{}{"name": "B", "owner_id": b})
	h.fp.Seed("tasks", map[string]interface{}{"title": "a-task", "project_id": pa["id"]})
	h.fp.Seed("tasks", map[string]interface{}{"title": "b-task", "project_id": pb["id"]})

	rec := h.do(t, http.MethodGet, "/api/tasks", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if tasks := decode[[]models.Task](t, rec); len(tasks) != 2 {
		t.Errorf("got %d tasks, want every user's 2", len(tasks))
	}

	rec = h.do(t, http.MethodPost, "/api/tasks", "", map[string]string{"title": "anyone"})
	if rec.Code != http.StatusOK {
		t.Errorf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Auth, config, health
// ---------------------------------------------------------------------------

func TestAuthCallback_SetsCookies(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	rec := h.do(t, http.MethodPost, "/auth/callback", "", map[string]interface{}{
		"session": map[string]string{"access_token": "a", "refresh_token": "r"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ok := decode[map[string]bool](t, rec)["success"]; !ok {
		t.Error("expected success true")
	}

	got := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		if !c.HttpOnly || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %s attributes = %+v", c.Name, c)
		}
		got[c.Name] = c.Value
	}
	if got[session.AccessCookie] != "a" || got[session.RefreshCookie] != "r" {
		t.Errorf("cookies = %v", got)
	}
}

// signUp calls the platform the way the dashboard page does and returns the
// decoded response body.
func signUp(t *testing.T, fp *testutil.FakePlatform, email string) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": "secret123"})
	req, err := http.NewRequest(http.MethodPost, fp.URL()+"/auth/v1/signup", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", testutil.AnonKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup status %d", resp.StatusCode)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	return out
}

func TestAuthCallback_AcceptsSignupSession(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	signup := signUp(t, h.fp, "new@example.com")
	rec := h.do(t, http.MethodPost, "/auth/callback", "", map[string]interface{}{"session": signup})
	if rec.Code != http.StatusOK {
		t.Fatalf("callback: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var access string
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.AccessCookie {
			access = c.Value
		}
	}
	if access == "" || access != signup["access_token"] {
		t.Fatalf("access cookie %q does not carry the signup token", access)
	}

	me := h.do(t, http.MethodGet, "/api/me", access, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", me.Code)
	}
	if u := decode[session.User](t, me); u.Email != "new@example.com" {
		t.Errorf("me email = %q", u.Email)
	}
	if len(h.fp.Rows("profiles")) != 1 {
		t.Error("signup should create a profile")
	}
}

func TestSignup_PendingConfirmationHasNoSession(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	h.fp.ConfirmEmail = true

	signup := signUp(t, h.fp, "pending@example.com")
	if _, ok := signup["access_token"]; ok {
		t.Fatal("pending signup should not issue a session")
	}
	if signup["email"] != "pending@example.com" {
		t.Errorf("pending signup body = %v", signup)
	}
}

func TestAuthCallback_MissingSession(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	for _, body := range []interface{}{map[string]string{}, map[string]interface{}{"session": nil}, "garbage"} {
		rec := h.do(t, http.MethodPost, "/auth/callback", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, rec.Code)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("body %v: cookies should not be set", body)
		}
	}
}

func TestLogout_ClearsCookies(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	rec := h.do(t, http.MethodPost, "/auth/logout", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s not expired", c.Name)
		}
	}
}

func TestMe(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)
	id, token := h.fp.AddUser("a@example.com")

	rec := h.do(t, http.MethodGet, "/api/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	u := decode[session.User](t, rec)
	if u.ID != id || u.Email != "a@example.com" {
		t.Errorf("me = %+v", u)
	}
}

func TestPublicConfig_OmitsServiceKey(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	rec := h.do(t, http.MethodGet, "/api/config", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), testutil.ServiceKey) {
		t.Fatal("service-role key exposed")
	}
	cfg := decode[map[string]string](t, rec)
	if cfg["supabase_url"] != h.fp.URL() || cfg["anon_key"] != testutil.AnonKey {
		t.Errorf("config = %v", cfg)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	h.fp.Close()
	rec = h.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("platform down: expected 503, got %d", rec.Code)
	}
}

func TestMetricsAndIndex(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	h.do(t, http.MethodGet, "/health", "", nil)
	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dupaboard_http_requests_total") {
		t.Error("metrics output lacks request counter")
	}

	rec = h.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("index: status %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestCORS(t *testing.T) {
	h := newHarness(t, config.TaskAccessScoped)

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight: expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("whitelisted origin should get credentials")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should not be allowed")
	}
}
