// Package testutil provides an in-process stand-in for the data platform.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	AnonKey    = "test-anon-key"
	ServiceKey = "test-service-role-key"
)

// FakePlatform is an httptest server speaking the subset of GoTrue and
// PostgREST the dashboard uses. Tables are untyped rows keyed by column.
//
// Rows of tables listed in OwnerColumns are only visible to, and only
// writable by, the user whose id is in that column, unless the request
// carries the service-role key. That mimics the platform's row policies.
type FakePlatform struct {
	Server *httptest.Server

	mu       sync.Mutex
	users    map[string]*fakeUser // id -> user
	tokens   map[string]string    // access token -> user id
	refresh  map[string]string    // refresh token -> user id
	tables   map[string][]map[string]interface{}
	seq      int
	requests []RecordedRequest

	OwnerColumns map[string]string

	// Error injection: when non-zero, matching calls answer with this status.
	RESTStatus int
	AuthStatus int

	// ConfirmEmail makes sign-up return the pending user without a session,
	// as the platform does when email confirmation is enabled.
	ConfirmEmail bool
}

type fakeUser struct {
	ID       string
	Email    string
	Password string
	Metadata map[string]interface{}
}

// RecordedRequest is one call the platform received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Bearer string
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakePlatform starts a fake platform. Callers must Close it.
func NewFakePlatform() *FakePlatform {
	f := &FakePlatform{
		users:        make(map[string]*fakeUser),
		tokens:       make(map[string]string),
		refresh:      make(map[string]string),
		tables:       make(map[string][]map[string]interface{}),
		OwnerColumns: map[string]string{"projects": "owner_id"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": "GoTrue"})
	})
	mux.HandleFunc("GET /auth/v1/user", f.handleGetUser)
	mux.HandleFunc("POST /auth/v1/token", f.handleToken)
	mux.HandleFunc("POST /auth/v1/signup", f.handleSignup)
	mux.HandleFunc("POST /auth/v1/admin/users", f.handleAdminCreateUser)
	mux.HandleFunc("/rest/v1/{table}", f.handleREST)

	f.Server = httptest.NewServer(f.record(mux))
	return f
}

func (f *FakePlatform) Close() {
	f.Server.Close()
}

func (f *FakePlatform) URL() string {
	return f.Server.URL
}

// AddUser registers a user and returns its id and a valid access token.
func (f *FakePlatform) AddUser(email string) (id, accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id = uuid.NewString()
	f.users[id] = &fakeUser{ID: id, Email: email}
	accessToken = "access-" + uuid.NewString()
	f.tokens[accessToken] = id
	return id, accessToken
}

// IssueRefreshToken returns a refresh token that can be exchanged for userID.
func (f *FakePlatform) IssueRefreshToken(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt := "refresh-" + uuid.NewString()
	f.refresh[rt] = userID
	return rt
}

// Seed inserts a row directly, bypassing policies. Missing id and
// created_at are filled in. The stored row is returned.
func (f *FakePlatform) Seed(table string, row map[string]interface{}) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(table, row)
}

// Rows returns a copy of every row in table.
func (f *FakePlatform) Rows(table string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.tables[table]))
	for _, row := range f.tables[table] {
		out = append(out, copyRow(row))
	}
	return out
}

// Requests returns the calls received so far.
func (f *FakePlatform) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Mutations counts table writes (POST, PATCH, DELETE under /rest/v1).
func (f *FakePlatform) Mutations() int {
	n := 0
	for _, r := range f.Requests() {
		if strings.HasPrefix(r.Path, "/rest/v1/") && r.Method != http.MethodGet {
			n++
		}
	}
	return n
}

func (f *FakePlatform) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Bearer: strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		})
		f.mu.Unlock()

		if r.Header.Get("apikey") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No API key found in request"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -----------------------------------------------------------------------
// Auth

func (f *FakePlatform) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if f.AuthStatus != 0 {
		writeJSON(w, f.AuthStatus, map[string]interface{}{"code": f.AuthStatus, "msg": "injected failure"})
		return
	}
	f.mu.Lock()
	id, ok := f.tokens[bearer(r)]
	var u *fakeUser
	if ok {
		u = f.users[id]
	}
	f.mu.Unlock()

	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"code": 401, "error_code": "bad_jwt", "msg": "invalid JWT: unable to parse or verify signature",
		})
		return
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (f *FakePlatform) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "refresh_token" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type", "error_description": "unsupported grant type"})
		return
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "could not read body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.refresh[body.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid Refresh Token: Refresh Token Not Found"})
		return
	}
	delete(f.refresh, body.RefreshToken)

	writeJSON(w, http.StatusOK, f.sessionLocked(id))
}

// handleSignup registers a user with the anon key. Without ConfirmEmail the
// response is a full session, otherwise only the unconfirmed user.
func (f *FakePlatform) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string                 `json:"email"`
		Password string                 `json:"password"`
		Data     map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code": 400, "error_code": "validation_failed", "msg": "Signup requires a valid password",
		})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.createUserLocked(body.Email, body.Password, body.Data)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"code": 422, "error_code": "user_already_exists", "msg": "User already registered",
		})
		return
	}
	if f.ConfirmEmail {
		pending := userJSON(u)
		pending["confirmation_sent_at"] = time.Now().UTC().Format(time.RFC3339)
		writeJSON(w, http.StatusOK, pending)
		return
	}
	writeJSON(w, http.StatusOK, f.sessionLocked(u.ID))
}

// sessionLocked issues a fresh access/refresh pair for id.
func (f *FakePlatform) sessionLocked(id string) map[string]interface{} {
	access := "access-" + uuid.NewString()
	rt := "refresh-" + uuid.NewString()
	f.tokens[access] = id
	f.refresh[rt] = id
	return map[string]interface{}{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    time.Now().Add(time.Hour).Unix(),
		"refresh_token": rt,
		"user":          userJSON(f.users[id]),
	}
}

// createUserLocked adds a user and its trigger-created profile. It reports
// false when the email is taken.
func (f *FakePlatform) createUserLocked(email, password string, metadata map[string]interface{}) (*fakeUser, bool) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return nil, false
		}
	}
	u := &fakeUser{ID: uuid.NewString(), Email: email, Password: password, Metadata: metadata}
	f.users[u.ID] = u

	// handle_new_user trigger
	name, _ := metadata["name"].(string)
	f.insertLocked("profiles", map[string]interface{}{"id": u.ID, "name": name})
	return u, true
}

func (f *FakePlatform) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	if bearer(r) != ServiceKey {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"code": 403, "msg": "User not allowed"})
		return
	}
	var body struct {
		Email        string                 `json:"email"`
		Password     string                 `json:"password"`
		UserMetadata map[string]interface{} `json:"user_metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 400, "msg": "email is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.createUserLocked(body.Email, body.Password, body.UserMetadata)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"code": 422, "error_code": "email_exists", "msg": "A user with this email address has already been registered",
		})
		return
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

// -----------------------------------------------------------------------
// Tables

func (f *FakePlatform) handleREST(w http.ResponseWriter, r *http.Request) {
	if f.RESTStatus != 0 {
		writeJSON(w, f.RESTStatus, pgError("XX000", "injected failure"))
		return
	}

	table := r.PathValue("table")
	caller, privileged, ok := f.caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, pgError("PGRST301", "JWT could not be decoded"))
		return
	}
	filters, order := parseQuery(r)
	representation := strings.Contains(r.Header.Get("Prefer"), "return=representation")
	single := r.Header.Get("Accept") == "application/vnd.pgrst.object+json"

	f.mu.Lock()
	defer f.mu.Unlock()

	ownerCol := f.OwnerColumns[table]
	visible := func(row map[string]interface{}) bool {
		if privileged || ownerCol == "" {
			return true
		}
		return str(row[ownerCol]) == caller
	}

	var result []map[string]interface{}
	status := http.StatusOK

	switch r.Method {
	case http.MethodGet:
		for _, row := range f.tables[table] {
			if visible(row) && matches(row, filters) {
				result = append(result, copyRow(row))
			}
		}
		representation = true

	case http.MethodPost:
		rows, err := decodeRows(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, pgError("PGRST102", "Empty or invalid json"))
			return
		}
		merge := strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates")
		for _, row := range rows {
			if !privileged && ownerCol != "" && str(row[ownerCol]) != caller {
				writeJSON(w, http.StatusForbidden, pgError("42501", fmt.Sprintf("new row violates row-level security policy for table %q", table)))
				return
			}
			if msg := f.violatesLocked(table, row); msg != "" {
				writeJSON(w, http.StatusBadRequest, pgError("23502", msg))
				return
			}
		}
		for _, row := range rows {
			if merge {
				if existing := f.findLocked(table, str(row["id"])); existing != nil {
					for k, v := range row {
						existing[k] = v
					}
					result = append(result, copyRow(existing))
					continue
				}
			}
			result = append(result, copyRow(f.insertLocked(table, row)))
		}
		status = http.StatusCreated

	case http.MethodPatch:
		var values map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeJSON(w, http.StatusBadRequest, pgError("PGRST102", "Empty or invalid json"))
			return
		}
		for _, row := range f.tables[table] {
			if visible(row) && matches(row, filters) {
				for k, v := range values {
					row[k] = v
				}
				result = append(result, copyRow(row))
			}
		}

	case http.MethodDelete:
		kept := f.tables[table][:0]
		for _, row := range f.tables[table] {
			if visible(row) && matches(row, filters) {
				result = append(result, copyRow(row))
				continue
			}
			kept = append(kept, row)
		}
		f.tables[table] = kept

	default:
		writeJSON(w, http.StatusMethodNotAllowed, pgError("PGRST117", "Unsupported HTTP method"))
		return
	}

	sortRows(result, order)

	if single {
		if len(result) != 1 {
			writeJSON(w, http.StatusNotAcceptable, map[string]interface{}{
				"code":    "PGRST116",
				"details": fmt.Sprintf("The result contains %d rows", len(result)),
				"hint":    nil,
				"message": "JSON object requested, multiple (or no) rows returned",
			})
			return
		}
		writeJSON(w, status, result[0])
		return
	}
	if !representation {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if result == nil {
		result = []map[string]interface{}{}
	}
	writeJSON(w, status, result)
}

// caller identifies the request: the service-role key is privileged, a
// known access token is that user, and the bare anon key is anonymous.
func (f *FakePlatform) caller(r *http.Request) (userID string, privileged, ok bool) {
	b := bearer(r)
	switch b {
	case ServiceKey:
		return "", true, true
	case AnonKey, "":
		return "", false, true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, found := f.tokens[b]
	return id, false, found
}

func (f *FakePlatform) violatesLocked(table string, row map[string]interface{}) string {
	required := map[string]string{"projects": "name", "tasks": "title"}
	if col, ok := required[table]; ok && str(row[col]) == "" {
		return fmt.Sprintf("null value in column %q of relation %q violates not-null constraint", col, table)
	}
	return ""
}

func (f *FakePlatform) findLocked(table, id string) map[string]interface{} {
	if id == "" {
		return nil
	}
	for _, row := range f.tables[table] {
		if str(row["id"]) == id {
			return row
		}
	}
	return nil
}

func (f *FakePlatform) insertLocked(table string, row map[string]interface{}) map[string]interface{} {
	stored := copyRow(row)
	if str(stored["id"]) == "" {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		f.seq++
		stored["created_at"] = baseTime.Add(time.Duration(f.seq) * time.Second).Format(time.RFC3339Nano)
	}
	if table == "tasks" && str(stored["status"]) == "" {
		stored["status"] = "todo"
	}
	f.tables[table] = append(f.tables[table], stored)
	return stored
}

// -----------------------------------------------------------------------
// Helpers

type filter struct {
	column string
	op     string
	values []string
}

func parseQuery(r *http.Request) ([]filter, string) {
	var filters []filter
	var order string
	for key, vals := range r.URL.Query() {
		switch key {
		case "select", "on_conflict", "limit", "offset":
			continue
		case "order":
			order = vals[0]
			continue
		}
		for _, v := range vals {
			switch {
			case strings.HasPrefix(v, "eq."):
				filters = append(filters, filter{column: key, op: "eq", values: []string{strings.TrimPrefix(v, "eq.")}})
			case strings.HasPrefix(v, "in.(") && strings.HasSuffix(v, ")"):
				inner := strings.TrimSuffix(strings.TrimPrefix(v, "in.("), ")")
				var items []string
				if inner != "" {
					for _, item := range strings.Split(inner, ",") {
						items = append(items, strings.Trim(item, `"`))
					}
				}
				filters = append(filters, filter{column: key, op: "in", values: items})
			}
		}
	}
	return filters, order
}

func matches(row map[string]interface{}, filters []filter) bool {
	for _, f := range filters {
		v := str(row[f.column])
		found := false
		for _, want := range f.values {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortRows(rows []map[string]interface{}, order string) {
	if order == "" {
		return
	}
	col, dir, _ := strings.Cut(order, ".")
	desc := dir == "desc"
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := str(rows[i][col]), str(rows[j][col])
		if desc {
			return a > b
		}
		return a < b
	})
}

func decodeRows(body io.Reader) ([]map[string]interface{}, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) > 0 && raw[0] == '[' {
		var rows []map[string]interface{}
		err := json.Unmarshal(raw, &rows)
		return rows, err
	}
	var row map[string]interface{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return []map[string]interface{}{row}, nil
}

func copyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func str(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func userJSON(u *fakeUser) map[string]interface{} {
	return map[string]interface{}{
		"id":            u.ID,
		"email":         u.Email,
		"role":          "authenticated",
		"user_metadata": u.Metadata,
		"created_at":    baseTime.Format(time.RFC3339),
	}
}

func pgError(code, message string) map[string]interface{} {
	return map[string]interface{}{"code": code, "message": message, "details": nil, "hint": nil}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
